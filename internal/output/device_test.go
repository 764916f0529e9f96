/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package output

import "testing"

func TestDeviceSetVolumeClamps(t *testing.T) {
	d := &Device{}
	d.SetVolume(1.5)
	if v := d.Volume(); v != 1.0 {
		t.Errorf("expected clamp to 1.0, got %v", v)
	}
	d.SetVolume(-0.5)
	if v := d.Volume(); v != 0.0 {
		t.Errorf("expected clamp to 0.0, got %v", v)
	}
	d.SetVolume(0.42)
	if v := d.Volume(); v != 0.42 {
		t.Errorf("expected 0.42, got %v", v)
	}
}

type countingPuller struct {
	calls int
}

func (c *countingPuller) PullFrames(out []float32, numFrames int) {
	c.calls++
	for i := range out {
		out[i] = 0.5
	}
}

func TestDeviceCallbackAppliesVolume(t *testing.T) {
	p := &countingPuller{}
	d := &Device{source: p}
	d.SetVolume(0.5)

	buf := make([]float32, 8)
	d.callback(buf)

	for _, v := range buf {
		if v != 0.25 {
			t.Errorf("expected 0.5*0.5=0.25, got %v", v)
		}
	}
	if p.calls != 1 {
		t.Errorf("expected exactly one pull, got %d", p.calls)
	}
}
