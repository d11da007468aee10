// Package surface provides the raster render target every Media Layer owns
// and the output canvas the Playback Scheduler and Export Muxer draw onto
// (spec §9's replacement for "canvas + 2D context as both storage and
// rendering target"). It deliberately has no dependency on any concrete
// windowing or GPU library: pixels live in a plain RGBA byte buffer, which
// is what both the live scheduler and the offline export path need.
package surface

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Surface is a mutable RGBA raster with an affine transform stack, modeling
// the subset of a 2D canvas context the engine needs: resize, clear,
// draw_image, put_pixels, text, and save/restore/translate/rotate.
type Surface struct {
	img   *image.RGBA
	stack []transform
	cur   transform
}

type transform struct {
	tx, ty float64
	rotRad float64
}

func identity() transform { return transform{} }

// New creates a cleared surface of the given size.
func New(width, height int) *Surface {
	return &Surface{
		img: image.NewRGBA(image.Rect(0, 0, width, height)),
		cur: identity(),
	}
}

func (s *Surface) Width() int  { return s.img.Bounds().Dx() }
func (s *Surface) Height() int { return s.img.Bounds().Dy() }

// Resize reallocates the backing buffer, discarding content — callers that
// need to preserve pixels across a resize must copy first.
func (s *Surface) Resize(width, height int) {
	s.img = image.NewRGBA(image.Rect(0, 0, width, height))
}

// Clear fills the surface with transparent black.
func (s *Surface) Clear() {
	draw.Draw(s.img, s.img.Bounds(), image.Transparent, image.Point{}, draw.Src)
}

// Save pushes the current transform.
func (s *Surface) Save() {
	s.stack = append(s.stack, s.cur)
}

// Restore pops the last saved transform, or resets to identity if the
// stack is empty.
func (s *Surface) Restore() {
	if n := len(s.stack); n > 0 {
		s.cur = s.stack[n-1]
		s.stack = s.stack[:n-1]
		return
	}
	s.cur = identity()
}

func (s *Surface) Translate(dx, dy float64) {
	s.cur.tx += dx
	s.cur.ty += dy
}

func (s *Surface) Rotate(radians float64) {
	s.cur.rotRad += radians
}

// DrawImage composites src onto the surface at (x,y), scaled by scale and
// rotated by rotationDeg around its own center, honoring the current
// translate/rotate transform. This is the code path Video/Image layer
// rendering funnels through.
func (s *Surface) DrawImage(src image.Image, x, y, scale float32, rotationDeg float32) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return
	}

	totalRot := float64(rotationDeg)*math.Pi/180 + s.cur.rotRad
	sinR, cosR := math.Sin(totalRot), math.Cos(totalRot)
	cx, cy := float64(x)+s.cur.tx, float64(y)+s.cur.ty
	hw, hh := float64(w)*float64(scale)/2, float64(h)*float64(scale)/2

	dstBounds := s.img.Bounds()
	for dy := dstBounds.Min.Y; dy < dstBounds.Max.Y; dy++ {
		for dx := dstBounds.Min.X; dx < dstBounds.Max.X; dx++ {
			// inverse-transform the destination pixel back into source space
			relX, relY := float64(dx)-cx, float64(dy)-cy
			rotX := relX*cosR + relY*sinR
			rotY := -relX*sinR + relY*cosR
			if rotX < -hw || rotX >= hw || rotY < -hh || rotY >= hh {
				continue
			}
			srcX := b.Min.X + int((rotX+hw)/float64(scale))
			srcY := b.Min.Y + int((rotY+hh)/float64(scale))
			if srcX < b.Min.X || srcX >= b.Max.X || srcY < b.Min.Y || srcY >= b.Max.Y {
				continue
			}
			c := src.At(srcX, srcY)
			if _, _, _, a := c.RGBA(); a == 0 {
				continue
			}
			s.img.Set(dx, dy, c)
		}
	}
}

// PutPixels overwrites the full buffer with packed RGBA8888 bytes, used by
// the demux pipeline to hand decoded frames straight to a layer's surface
// without going through the image.Image interface.
func (s *Surface) PutPixels(pix []byte) {
	copy(s.img.Pix, pix)
}

// GetPixels returns the raw packed RGBA8888 buffer, e.g. for the export
// muxer to hand a rendered frame to an encoder.
func (s *Surface) GetPixels() []byte {
	return s.img.Pix
}

// Image exposes the surface as a read-only image.Image for compositing
// onto another surface via DrawImage.
func (s *Surface) Image() image.Image {
	return s.img
}

var textFace = basicfont.Face7x13

// MeasureText returns the pixel width of s rendered in the built-in face.
func MeasureText(text string) int {
	var width fixed.Int26_6
	for _, r := range text {
		adv, ok := textFace.GlyphAdvance(r)
		if !ok {
			continue
		}
		width += adv
	}
	return width.Round()
}

// FillText draws text at (x, y) baseline in the given color — the
// lazily-rendered raster backing a Text layer (spec §4.2).
func (s *Surface) FillText(text string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  s.img,
		Src:  image.NewUniform(c),
		Face: textFace,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// LetterboxRect computes the destination rectangle within an output
// surface of size outW×outH that a contentW×contentH surface should be
// blitted into, preserving aspect ratio (spec §4.2's "letterbox/pillarbox
// scale onto out_ctx").
func LetterboxRect(outW, outH, contentW, contentH int) image.Rectangle {
	if contentW == 0 || contentH == 0 {
		return image.Rect(0, 0, 0, 0)
	}
	outAspect := float64(outW) / float64(outH)
	contentAspect := float64(contentW) / float64(contentH)

	var w, h int
	if contentAspect > outAspect {
		w = outW
		h = int(float64(outW) / contentAspect)
	} else {
		h = outH
		w = int(float64(outH) * contentAspect)
	}
	x0 := (outW - w) / 2
	y0 := (outH - h) / 2
	return image.Rect(x0, y0, x0+w, y0+h)
}

// Blit draws src scaled into dstRect on the destination surface, the
// nearest-neighbour resample used for the letterbox/pillarbox composite.
func (s *Surface) Blit(src *Surface, dstRect image.Rectangle) {
	sb := src.img.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 || dstRect.Dx() == 0 || dstRect.Dy() == 0 {
		return
	}
	for dy := dstRect.Min.Y; dy < dstRect.Max.Y; dy++ {
		sy := sb.Min.Y + (dy-dstRect.Min.Y)*sb.Dy()/dstRect.Dy()
		for dx := dstRect.Min.X; dx < dstRect.Max.X; dx++ {
			sx := sb.Min.X + (dx-dstRect.Min.X)*sb.Dx()/dstRect.Dx()
			s.img.Set(dx, dy, src.img.At(sx, sy))
		}
	}
}
