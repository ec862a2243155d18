package cel

import "image"

// blendFunc combines one premultiplied source pixel with one destination pixel.
type blendFunc func(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte)

func (b BlendMode) blendFunc() blendFunc {
	switch b {
	case BlendAdd:
		return blendPlus
	case BlendMultiply:
		return blendMultiply
	case BlendScreen:
		return blendScreen
	case BlendErase:
		return blendDestinationOut
	case BlendMask:
		return blendDestinationIn
	case BlendBelow:
		return blendDestinationOver
	case BlendNone:
		return blendSource
	case BlendSourceIn:
		return blendSourceIn
	case BlendDestAtop:
		return blendDestinationAtop
	default:
		return blendSourceOver
	}
}

// composite blends src onto dst with src's origin placed at at, scaling the
// source by opacity first. Both images hold premultiplied RGBA.
func composite(dst, src *image.RGBA, at image.Point, opacity float64, mode BlendMode) {
	alpha := byte(clamp01(opacity)*255 + 0.5)
	if alpha == 0 && mode != BlendNone {
		if mode.clearsOutside() {
			clearRGBA(dst, dst.Rect)
		}
		return
	}
	area := src.Rect.Sub(src.Rect.Min).Add(at).Intersect(dst.Rect)
	if mode.clearsOutside() {
		clearOutside(dst, area)
	}
	if area.Empty() {
		return
	}
	fn := mode.blendFunc()
	for y := area.Min.Y; y < area.Max.Y; y++ {
		si := src.PixOffset(src.Rect.Min.X+area.Min.X-at.X, src.Rect.Min.Y+y-at.Y)
		di := dst.PixOffset(area.Min.X, y)
		for x := area.Min.X; x < area.Max.X; x++ {
			sr, sg, sb, sa := src.Pix[si], src.Pix[si+1], src.Pix[si+2], src.Pix[si+3]
			if alpha != 255 {
				sr, sg, sb, sa = mulDiv255(sr, alpha), mulDiv255(sg, alpha), mulDiv255(sb, alpha), mulDiv255(sa, alpha)
			}
			d := dst.Pix[di : di+4 : di+4]
			d[0], d[1], d[2], d[3] = fn(sr, sg, sb, sa, d[0], d[1], d[2], d[3])
			si += 4
			di += 4
		}
	}
}

// clearOutside zeroes every pixel of dst that lies outside keep.
func clearOutside(dst *image.RGBA, keep image.Rectangle) {
	b := dst.Rect
	if keep.Empty() {
		clearRGBA(dst, b)
		return
	}
	clearRGBA(dst, image.Rect(b.Min.X, b.Min.Y, b.Max.X, keep.Min.Y))
	clearRGBA(dst, image.Rect(b.Min.X, keep.Max.Y, b.Max.X, b.Max.Y))
	clearRGBA(dst, image.Rect(b.Min.X, keep.Min.Y, keep.Min.X, keep.Max.Y))
	clearRGBA(dst, image.Rect(keep.Max.X, keep.Min.Y, b.Max.X, keep.Max.Y))
}

func clearRGBA(dst *image.RGBA, r image.Rectangle) {
	r = r.Intersect(dst.Rect)
	if r.Empty() {
		return
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		i := dst.PixOffset(r.Min.X, y)
		clear(dst.Pix[i : i+4*r.Dx()])
	}
}

// S + D*(1-Sa)
func blendSourceOver(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	invSa := 255 - sa
	return addClamp(sr, mulDiv255(dr, invSa)),
		addClamp(sg, mulDiv255(dg, invSa)),
		addClamp(sb, mulDiv255(db, invSa)),
		addClamp(sa, mulDiv255(da, invSa))
}

// S*(1-Da) + D
func blendDestinationOver(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	invDa := 255 - da
	return addClamp(mulDiv255(sr, invDa), dr),
		addClamp(mulDiv255(sg, invDa), dg),
		addClamp(mulDiv255(sb, invDa), db),
		addClamp(mulDiv255(sa, invDa), da)
}

// S*Da
func blendSourceIn(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	return mulDiv255(sr, da), mulDiv255(sg, da), mulDiv255(sb, da), mulDiv255(sa, da)
}

// D*Sa
func blendDestinationIn(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	return mulDiv255(dr, sa), mulDiv255(dg, sa), mulDiv255(db, sa), mulDiv255(da, sa)
}

// D*(1-Sa)
func blendDestinationOut(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	invSa := 255 - sa
	return mulDiv255(dr, invSa), mulDiv255(dg, invSa), mulDiv255(db, invSa), mulDiv255(da, invSa)
}

// S*(1-Da) + D*Sa
func blendDestinationAtop(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	invDa := 255 - da
	return addClamp(mulDiv255(sr, invDa), mulDiv255(dr, sa)),
		addClamp(mulDiv255(sg, invDa), mulDiv255(dg, sa)),
		addClamp(mulDiv255(sb, invDa), mulDiv255(db, sa)),
		sa
}

func blendSource(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	return sr, sg, sb, sa
}

// min(S+D, 255)
func blendPlus(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	return addClamp(sr, dr), addClamp(sg, dg), addClamp(sb, db), addClamp(sa, da)
}

// S*(1-Da) + D*(1-Sa) + S*D
func blendMultiply(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	invSa, invDa := 255-sa, 255-da
	ch := func(s, d byte) byte {
		return addClamp(addClamp(mulDiv255(s, invDa), mulDiv255(d, invSa)), mulDiv255(s, d))
	}
	return ch(sr, dr), ch(sg, dg), ch(sb, db), addClamp(sa, mulDiv255(da, invSa))
}

// S + D - S*D
func blendScreen(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	ch := func(s, d byte) byte {
		v := int(s) + int(d) - int(mulDiv255(s, d))
		return byte(min(max(v, 0), 255))
	}
	return ch(sr, dr), ch(sg, dg), ch(sb, db), ch(sa, da)
}

// mulDiv255 multiplies two bytes and divides by 255 with rounding.
func mulDiv255(a, b byte) byte {
	return byte((uint16(a)*uint16(b) + 127) / 255)
}

func addClamp(a, b byte) byte {
	sum := uint16(a) + uint16(b)
	if sum > 255 {
		return 255
	}
	return byte(sum)
}
