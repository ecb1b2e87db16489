package wallpaper

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

// Fit scales img up or down to fit inside width x height, preserving aspect ratio,
// and centers it on a black canvas of exactly width x height.
func Fit(img image.Image, width, height int) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)

	src := img.Bounds()
	w, h := fitSize(src.Dx(), src.Dy(), width, height)
	if w == 0 || h == 0 {
		return canvas
	}

	x := (width - w) / 2
	y := (height - h) / 2
	dst := image.Rect(x, y, x+w, y+h)

	if w == src.Dx() && h == src.Dy() {
		draw.Draw(canvas, dst, img, src.Min, draw.Src)
	} else {
		xdraw.CatmullRom.Scale(canvas, dst, img, src, xdraw.Src, nil)
	}
	return canvas
}

// fitSize returns the largest size with the source aspect ratio inside the box
func fitSize(srcW, srcH, boxW, boxH int) (int, int) {
	if srcW <= 0 || srcH <= 0 || boxW <= 0 || boxH <= 0 {
		return 0, 0
	}

	// compare srcW/srcH against boxW/boxH without floating point
	if srcW*boxH >= srcH*boxW {
		h := srcH * boxW / srcW
		if h < 1 {
			h = 1
		}
		return boxW, h
	}
	w := srcW * boxH / srcH
	if w < 1 {
		w = 1
	}
	return w, boxH
}
