// Package config defines the tunable numerical parameters of the SLAM core
// as a single immutable Options value, grouped the way go.viam.com/rdk/config
// groups a robot's component configs.
package config

import (
	"github.com/pkg/errors"
)

// KeypointOptions controls curvature analysis and keypoint selection
// (components B and C).
type KeypointOptions struct {
	// NeighborWidth is the half-window W for curvature and depth-gap.
	NeighborWidth int
	// MaxEdgePerScanLine and MaxPlanarsPerScanLine are per-line quotas.
	MaxEdgePerScanLine    int
	MaxPlanarsPerScanLine int
	// EdgeCurvatureThreshold and PlaneCurvatureThreshold are classification
	// cutoffs on the curvature proxy.
	EdgeCurvatureThreshold  float64
	PlaneCurvatureThreshold float64
	// DepthGapThreshold and BeamAngleBand drive the validity filter.
	DepthGapThreshold float64
	BeamAngleBand     float64
	// AngleResolution is the sensor's nominal per-step angular spacing
	// between consecutive returns on a scan line, in radians. The validity
	// filter rejects points whose azimuth gap to a neighbor exceeds several
	// multiples of it: a gap that much wider than nominal means a return
	// dropped out, and the fixed-width neighborhood curvatureAt/depthGapAt
	// assume no longer holds at that point.
	AngleResolution float64
}

// StageOptions is the shared contract both the ego-motion and mapping stages
// consume, implemented as one function parameterized by a configuration
// record rather than two near-duplicates.
type StageOptions struct {
	MaxIter      int
	IcpFrequence int

	LineDistanceNbrNeighbors  int
	PlaneDistanceNbrNeighbors int

	LineDistancefactor float64

	PlaneDistancefactor1 float64
	PlaneDistancefactor2 float64

	MaxLineDistance  float64
	MaxPlaneDistance float64
}

// MappingOptions extends StageOptions with mapping-only parameters.
type MappingOptions struct {
	StageOptions
	// WarmupFrames skips mapping (not ego-motion) for the first N frames,
	// so the rolling grid accumulates a minimally useful submap before
	// frame-to-map refinement starts competing with frame-to-frame.
	WarmupFrames int
}

// GridOptions sizes and downsamples the rolling voxel grid (component I).
type GridOptions struct {
	// VoxelSize is the voxel side length L_vox, in meters.
	VoxelSize float64
	// NbVoxel is the grid's side length in voxels (Gx=Gy=Gz=NbVoxel).
	NbVoxel int
	// SubmapNbVoxel is the half-extent, in voxels, of the submap bounding
	// box extracted around the sensor for the mapping stage.
	SubmapNbVoxel int
	// LeafVoxelFilterSize is the in-voxel downsampler's leaf size.
	LeafVoxelFilterSize float64
	// MaxPointsPerVoxel bounds a voxel's buffer between downsample passes;
	// 0 means unbounded.
	MaxPointsPerVoxel int
}

// UndistortionOptions controls the motion model (component D).
type UndistortionOptions struct {
	Enabled               bool
	ConstantVelocityPrior bool
}

// Options bundles every tunable numerical parameter of the SLAM core. It is
// immutable for the lifetime of an engine.Engine: changing parameters
// requires a new engine.
type Options struct {
	Keypoints    KeypointOptions
	EgoMotion    StageOptions
	Mapping      MappingOptions
	Grid         GridOptions
	Undistortion UndistortionOptions

	MinDistanceToSensor          float64
	MaxDistBetweenTwoFrames      float64
	MinPointToLineOrEdgeDistance float64

	MinEdgeKeypoints   int
	MinPlanarKeypoints int

	DisplayMode bool
}

// Default returns the LOAM reference constants.
func Default() Options {
	stage := StageOptions{
		MaxIter:                   15,
		IcpFrequence:              4,
		LineDistanceNbrNeighbors:  5,
		PlaneDistanceNbrNeighbors: 5,
		LineDistancefactor:        1.8,
		PlaneDistancefactor1:      1.5,
		PlaneDistancefactor2:      8.0,
		MaxLineDistance:           0.2,
		MaxPlaneDistance:          0.2,
	}

	return Options{
		Keypoints: KeypointOptions{
			NeighborWidth:           5,
			MaxEdgePerScanLine:      20,
			MaxPlanarsPerScanLine:   100,
			EdgeCurvatureThreshold:  2.0,
			PlaneCurvatureThreshold: 0.1,
			DepthGapThreshold:       0.1,
			BeamAngleBand:           0.1,
			AngleResolution:         0.00349, // ~0.2 degrees
		},
		EgoMotion: stage,
		Mapping: MappingOptions{
			StageOptions: stage,
			WarmupFrames: 0,
		},
		Grid: GridOptions{
			VoxelSize:           1.0,
			NbVoxel:             50,
			SubmapNbVoxel:       5,
			LeafVoxelFilterSize: 0.1,
			MaxPointsPerVoxel:   0,
		},
		Undistortion: UndistortionOptions{
			Enabled:               true,
			ConstantVelocityPrior: true,
		},
		MinDistanceToSensor:          3.0,
		MaxDistBetweenTwoFrames:      5.0,
		MinPointToLineOrEdgeDistance: 1e-4,
		MinEdgeKeypoints:             10,
		MinPlanarKeypoints:           10,
		DisplayMode:                  false,
	}
}

// Validate rejects nonsensical parameter combinations.
func (o Options) Validate() error {
	if o.Keypoints.NeighborWidth <= 0 {
		return errors.New("config: Keypoints.NeighborWidth must be positive")
	}
	if o.Keypoints.MaxEdgePerScanLine < 0 || o.Keypoints.MaxPlanarsPerScanLine < 0 {
		return errors.New("config: per-line keypoint quotas must be non-negative")
	}
	if o.Grid.VoxelSize <= 0 {
		return errors.New("config: Grid.VoxelSize must be positive")
	}
	if o.Grid.NbVoxel <= 0 {
		return errors.New("config: Grid.NbVoxel must be positive")
	}
	if o.Grid.SubmapNbVoxel <= 0 || o.Grid.SubmapNbVoxel > o.Grid.NbVoxel {
		return errors.New("config: Grid.SubmapNbVoxel must be positive and no larger than Grid.NbVoxel")
	}
	if o.Grid.LeafVoxelFilterSize <= 0 {
		return errors.New("config: Grid.LeafVoxelFilterSize must be positive")
	}
	if err := o.EgoMotion.validate("EgoMotion"); err != nil {
		return err
	}
	if err := o.Mapping.StageOptions.validate("Mapping"); err != nil {
		return err
	}
	if o.MaxDistBetweenTwoFrames <= 0 {
		return errors.New("config: MaxDistBetweenTwoFrames must be positive")
	}
	if o.MinEdgeKeypoints < 0 || o.MinPlanarKeypoints < 0 {
		return errors.New("config: minimum keypoint counts must be non-negative")
	}
	return nil
}

func (s StageOptions) validate(stage string) error {
	if s.MaxIter <= 0 {
		return errors.Errorf("config: %s.MaxIter must be positive", stage)
	}
	if s.IcpFrequence <= 0 {
		return errors.Errorf("config: %s.IcpFrequence must be positive", stage)
	}
	if s.LineDistanceNbrNeighbors <= 0 || s.PlaneDistanceNbrNeighbors <= 0 {
		return errors.Errorf("config: %s neighbor counts must be positive", stage)
	}
	if s.LineDistancefactor <= 1 {
		return errors.Errorf("config: %s.LineDistancefactor must be greater than 1", stage)
	}
	if s.PlaneDistancefactor1 <= 1 || s.PlaneDistancefactor2 <= 1 {
		return errors.Errorf("config: %s plane factors out of range", stage)
	}
	return nil
}
