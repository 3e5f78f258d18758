// Package imaging provides the pixel-level operations of the read pipeline.
//
// It covers photo decoding, grayscale conversion, blurring, global (Otsu)
// and adaptive thresholding, illumination flattening, contrast-limited
// adaptive histogram equalization, perspective warping, cropping and the
// annotation overlay used for debug images. All operations work with
// standard Go image types and use a coordinate system where (0,0) is the
// top-left corner, X increases rightward, and Y increases downward.
//
// # Binary Maps
//
// Thresholding functions return *image.Gray maps in which ink (foreground)
// pixels are 255 and paper pixels are 0. Grayscale and binary images
// produced here always have bounds starting at (0,0).
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. Every other operation is a
// pure function of its inputs: it never mutates the source image and may be
// called concurrently.
package imaging
