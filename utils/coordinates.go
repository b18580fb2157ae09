package utils

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// CylindricalToCartesian maps (r, theta, z) locations to (x, y, z).
func CylindricalToCartesian(pts []r3.Vec) []r3.Vec {
	out := make([]r3.Vec, len(pts))
	for i, p := range pts {
		out[i] = r3.Vec{X: p.X * math.Cos(p.Y), Y: p.X * math.Sin(p.Y), Z: p.Z}
	}
	return out
}

// CylindricalVectorsToCartesian rotates vectors with (r, theta, z)
// components, anchored at cylindrical locations pts, into cartesian
// components.
func CylindricalVectorsToCartesian(pts, vecs []r3.Vec) ([]r3.Vec, error) {
	if len(pts) != len(vecs) {
		return nil, fmt.Errorf("%d locations for %d vectors", len(pts), len(vecs))
	}
	out := make([]r3.Vec, len(vecs))
	for i, v := range vecs {
		c, s := math.Cos(pts[i].Y), math.Sin(pts[i].Y)
		out[i] = r3.Vec{X: v.X*c - v.Y*s, Y: v.X*s + v.Y*c, Z: v.Z}
	}
	return out, nil
}

// CartesianToCylindrical maps (x, y, z) locations to (r, theta, z).
func CartesianToCylindrical(pts []r3.Vec) []r3.Vec {
	out := make([]r3.Vec, len(pts))
	for i, p := range pts {
		out[i] = r3.Vec{X: math.Hypot(p.X, p.Y), Y: math.Atan2(p.Y, p.X), Z: p.Z}
	}
	return out
}

// CartesianVectorsToCylindrical rotates cartesian vectors anchored at
// cartesian locations pts into (r, theta, z) components.
func CartesianVectorsToCylindrical(pts, vecs []r3.Vec) ([]r3.Vec, error) {
	if len(pts) != len(vecs) {
		return nil, fmt.Errorf("%d locations for %d vectors", len(pts), len(vecs))
	}
	out := make([]r3.Vec, len(vecs))
	for i, v := range vecs {
		theta := math.Atan2(pts[i].Y, pts[i].X)
		c, s := math.Cos(theta), math.Sin(theta)
		out[i] = r3.Vec{X: c*v.X + s*v.Y, Y: -s*v.X + c*v.Y, Z: v.Z}
	}
	return out, nil
}

// RotationTol is the cross product norm below which RotatePointsFromNormals
// treats its normals as colinear.
const RotationTol = 1e-20

// RotationMatrixFromNormals returns the 3x3 rotation taking the direction of
// v0 onto the direction of v1 (Rodrigues' formula). When |v0 x v1| < tol,
// parallel and antiparallel alike, the identity is returned.
func RotationMatrixFromNormals(v0, v1 r3.Vec, tol float64) (*mat.Dense, error) {
	if r3.Norm(v0) == 0 || r3.Norm(v1) == 0 {
		return nil, fmt.Errorf("rotation normals must be non-zero")
	}
	n0, n1 := r3.Unit(v0), r3.Unit(v1)
	axis := r3.Cross(n0, n1)
	R := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	if r3.Norm(axis) < tol {
		return R, nil
	}
	axis = r3.Unit(axis)
	cosT := r3.Dot(n0, n1)
	sinT := math.Sqrt(math.Max(0, 1-cosT*cosT))
	ux := mat.NewDense(3, 3, []float64{
		0, -axis.Z, axis.Y,
		axis.Z, 0, -axis.X,
		-axis.Y, axis.X, 0,
	})
	var ux2 mat.Dense
	ux2.Mul(ux, ux)
	var term mat.Dense
	term.Scale(sinT, ux)
	R.Add(R, &term)
	term.Scale(1-cosT, &ux2)
	R.Add(R, &term)
	return R, nil
}

// RotatePointsFromNormals rotates pts about x0 by the rotation taking v0 onto
// v1, using RotationTol.
func RotatePointsFromNormals(pts []r3.Vec, v0, v1, x0 r3.Vec) ([]r3.Vec, error) {
	R, err := RotationMatrixFromNormals(v0, v1, RotationTol)
	if err != nil {
		return nil, err
	}
	out := make([]r3.Vec, len(pts))
	for i, p := range pts {
		d := r3.Sub(p, x0)
		out[i] = r3.Add(x0, r3.Vec{
			X: R.At(0, 0)*d.X + R.At(0, 1)*d.Y + R.At(0, 2)*d.Z,
			Y: R.At(1, 0)*d.X + R.At(1, 1)*d.Y + R.At(1, 2)*d.Z,
			Z: R.At(2, 0)*d.X + R.At(2, 1)*d.Y + R.At(2, 2)*d.Z,
		})
	}
	return out, nil
}
