package world

import (
	"encoding/base64"
	"encoding/json"

	"tilelight.ai/internal/observerproto"
)

// stepLight runs the simulator around every focus and returns encoded
// LIGHT_OVERLAY frames for the focuses some observer asked light for.
func (w *World) stepLight(nowTick uint64, focuses []*Focus) map[string][]byte {
	wanted := map[string]bool{}
	for _, c := range w.observers {
		if c.sub.Light && c.sub.FocusID != "" {
			wanted[c.sub.FocusID] = true
		}
	}

	var frames map[string][]byte
	for _, f := range focuses {
		ov := w.light.Run(f.Pos, w.cfg.TileSizeUnits, w.emitters, w.pbr)
		f.Light = w.light.FocusEnergy()
		if !wanted[f.ID] {
			continue
		}
		size := ov.Image.Bounds().Dx()
		msg := observerproto.LightOverlayMsg{
			Type:            observerproto.TypeLightOverlay,
			ProtocolVersion: observerproto.Version,
			FocusID:         f.ID,
			Tick:            nowTick,
			Origin:          [2]int{ov.Origin.X, ov.Origin.Y},
			Size:            size,
			Encoding:        observerproto.EncodingRGBA8,
			Data:            base64.StdEncoding.EncodeToString(ov.Image.Pix),
		}
		b, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if frames == nil {
			frames = map[string][]byte{}
		}
		frames[f.ID] = b
	}
	return frames
}
