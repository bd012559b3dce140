package params

// Default holds every parameter accepted by the /image/resize step, in the
// order they are documented and applied.
var Default = MustCatalog(
	Param{"width", nil, "1-5000", "Width of the new image, in pixels"},
	Param{"height", nil, "1-5000", "Height of the new image, in pixels"},
	Param{"strip", false, "boolean", "Strips all metadata from the image. This is useful to keep thumbnails as small as possible."},
	Param{"flatten", true, "boolean", "Flattens all layers onto the specified background to achieve better results from transparent formats to non-transparent formats, as explained in the ImageMagick documentation.\nNote To preserve animations, GIF files are not flattened when this is set to true. To flatten GIF animations, use the frame parameter."},
	Param{"correct_gamma", false, "boolean", "Prevents gamma errors common in many image scaling algorithms."},
	Param{"quality", 92, "1-100", "Controls the image compression for JPG and PNG images."},
	Param{"background", "#FFFFFF", "string", "Either the hexadecimal code or name of the color used to fill the background (only used for the pad resize strategy)."},
	Param{"resize_strategy", "fit", "fit|stretch|pad|crop|fillcrop", "https://transloadit.com/docs/conversion-robots#resize-strategies"},
	Param{"zoom", true, "boolean", "If this is set to false, smaller images will not be stretched to the desired width and height. For details about the impact of zooming for your preferred resize strategy, see the list of available resize strategies."},
	Param{"format", nil, "jpg|png|gif|tiff", `The available formats are "jpg", "png", "gif", and "tiff".`},
	Param{"gravity", "center", "center|top|bottom|left|right", `The direction from which the image is to be cropped. The available options are "center", "top", "bottom", "left", and "right". You can also combine options with a hyphen, such as "bottom-right".`},
	Param{"frame", nil, "integer", "Use this parameter when dealing with animated GIF files to specify which frame of the GIF is used for the operation. Specify 1 to use the first frame, 2 to use the second, and so on."},
	Param{"colorspace", nil, "string", `Sets the image colorspace. For details about the available values, see the ImageMagick documentation. Please note that if you were using "RGB", we recommend using "sRGB" instead as of 2014-02-04. ImageMagick might try to find the most efficient colorspace based on the color of an image, and default to e.g. "Gray". To force colors, you might then have to use this parameter in combination with type "TrueColor"`},
	Param{"type", nil, "string", `Sets the image color type. For details about the available values, see the ImageMagick documentation. If you're using colorspace, ImageMagick might try to find the most efficient based on the color of an image, and default to e.g. "Gray". To force colors, could e.g. set this parameter to "TrueColor"`},
	Param{"sepia", nil, "number", "Sets the sepia tone in percent. Valid values range from 0 - 99."},
	Param{"rotation", true, "string|boolean|integer", `Determines whether the image should be rotated. Set this to true to auto-rotate images that are rotated in a wrong way, or depend on EXIF rotation settings. You can also set this to an integer to specify the rotation in degrees. You can also specify "degrees" to rotate only when the image width exceeds the height (or "degrees" if the width must be less than the height). Specify false to disable auto-fixing of images that are rotated in a wrong way.`},
	Param{"compress", nil, "string", `Specifies pixel compression for when the image is written. Valid values are None, "BZip", "Fax", "Group4", "JPEG", "JPEG2000", "Lossless", "LZW", "RLE", and "Zip". Compression is disabled by default.`},
	Param{"blur", nil, "string", `Specifies gaussian blur, using a value with the form {radius}x{sigma}. The radius value specifies the size of area the operator should look at when spreading pixels, and should typically be either "0" or at least two times the sigma value. The sigma value is an approximation of how many pixels the image is "spread"; think of it as the size of the brush used to blur the image. This number is a floating point value, enabling small values like "0.5" to be used.`},

	// crop box and text overlay carry no metadata
	Param{Name: "crop_x1"},
	Param{Name: "crop_y1"},
	Param{Name: "crop_x2"},
	Param{Name: "crop_y2"},

	Param{Name: "text"},
	Param{"progressive", true, "boolean", "Interlaces the image if set to true, which makes the image load progressively in browsers. Instead of rendering the image from top to bottom, the browser will first show a low-res blurry version of the images which is then quickly replaced with the actual image as the data arrives. This greatly increases the user experience, but comes at a cost of a file size increase by around 10%."},
	Param{"transparent", nil, "string", "Make this color transparent within the image."},
	Param{"clip", false, "mixed", "Apply the clipping path to other operations in the resize job, if one is present. If set to true, it will automatically take the first clipping path. If set to a string it finds a clipping path by that name."},
	Param{"negate", false, "boolean", "Replace each pixel with its complementary color, effictively negating the image. Especially useful when testing clipping."},
	Param{"density", nil, "string", "While in-memory quality and file format depth specifies the color resolution, the density of an image is the spatial (space) resolution of the image. That is the density (in pixels per inch) of an image and defines how far apart (or how big) the individual pixels are. It defines the size of the image in real world terms when displayed on devices or printed.\n\nYou can set this value to a specific width or in the format widthxheight.\n\nIf your converted image has a low resolution, please try using the density parameter to resolve that."},
	Param{"force_accept", false, "boolean", "Robots may accept only certain file types - all other possible input files are ignored. \nThis means the /video/encode robot for example will never touch an image while the /image/resize robot will never look at a video.\nWith the force_accept parameter you can force a robot to accept all files thrown at him, regardless if it would normally accept them."},
	Param{"watermark_url", nil, "string", "A url indicating a PNG image to be overlaid above this image. Please note that you can also supply the watermark via another assembly step."},
	Param{"watermark_position", "center", "string", "The position at which the watermark is placed. The available options are \"center\", \"top\", \"bottom\", \"left\", and \"right\". You can also combine options, such as \"bottom-right\".\n\nThis setting puts the watermark in the specified corner. To use a specific pixel offset for the watermark, you will need to add the padding to the image itself."},
	Param{"watermark_size", nil, "string", "The size of the watermark, as a percentage.\nFor example, a value of \"50%\" means that size of the watermark will be 50% of the size of image on which it is placed."},
	Param{"watermark_resize_strategy", "fit", "string", `Available values are "fit" and "stretch".`},
)
