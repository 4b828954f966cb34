package core

import (
	"math"
	"testing"
)

func TestVec3_Basics(t *testing.T) {
	a := Vec3{X: 1, Y: 2, Z: 3}
	b := Vec3{X: 4, Y: 5, Z: 6}

	if got := a.Dot(b); got != 32 {
		t.Errorf("Dot = %v, want 32", got)
	}
	if got := a.Sub(b); got != (Vec3{X: -3, Y: -3, Z: -3}) {
		t.Errorf("Sub = %+v", got)
	}
	if got := a.Add(b); got != (Vec3{X: 5, Y: 7, Z: 9}) {
		t.Errorf("Add = %+v", got)
	}
	if got := a.Scale(2); got != (Vec3{X: 2, Y: 4, Z: 6}) {
		t.Errorf("Scale = %+v", got)
	}
	if got := (Vec3{X: 3, Y: 4}).Norm(); got != 5 {
		t.Errorf("Norm = %v, want 5", got)
	}
	if got := (Vec3{X: 3, Y: 4}).DistanceTo(Vec3{}); got != 5 {
		t.Errorf("DistanceTo = %v, want 5", got)
	}
}

func TestVec3_Cross(t *testing.T) {
	x := Vec3{X: 1}
	y := Vec3{Y: 1}

	if got := x.Cross(y); got != (Vec3{Z: 1}) {
		t.Errorf("x × y = %+v, want +z", got)
	}
	if got := y.Cross(x); got != (Vec3{Z: -1}) {
		t.Errorf("y × x = %+v, want -z", got)
	}
}

func TestVec3_IsFinite(t *testing.T) {
	if !(Vec3{X: 1, Y: 2, Z: 3}).IsFinite() {
		t.Errorf("finite vector reported non-finite")
	}
	if (Vec3{X: math.NaN()}).IsFinite() {
		t.Errorf("NaN component reported finite")
	}
	if (Vec3{Z: math.Inf(1)}).IsFinite() {
		t.Errorf("Inf component reported finite")
	}
}
