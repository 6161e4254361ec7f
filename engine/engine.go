// Package engine is the top-level orchestrator: it owns the persistent
// SLAM state (T_world, the rolling grid, the trajectory, NbrFrameProcessed)
// across frames and wires together components A-I into the per-frame
// pipeline, the way slam.LocationAwareRobot owned a SquareArea and device
// state across calls.
package engine

import (
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/thelineover/VeloView/config"
	"github.com/thelineover/VeloView/curvature"
	"github.com/thelineover/VeloView/keypoint"
	"github.com/thelineover/VeloView/logging"
	"github.com/thelineover/VeloView/point"
	"github.com/thelineover/VeloView/registration"
	"github.com/thelineover/VeloView/scanline"
	"github.com/thelineover/VeloView/spatialmath"
	"github.com/thelineover/VeloView/voxelgrid"
)

// ErrCalibrationMissing is returned by AddFrame and OnlyComputeKeypoints when
// called before SetSensorCalibration. Fatal for that call; state unchanged.
var ErrCalibrationMissing = errors.New("engine: add_frame called before set_sensor_calibration")

// ErrResetWhileProcessing is returned by Reset when a frame is concurrently
// in flight; reset is only legal between frames.
var ErrResetWhileProcessing = errors.New("engine: reset called while a frame is being processed")

// Status flags the pipeline's soft failures. The core never fails a frame
// outright for these; it logs, flags FrameResult.Status, and the pipeline
// falls back to dead-reckoning or skips the affected stage.
type Status struct {
	EmptyFrame            bool
	InsufficientKeypoints bool
	EgoMotionDegenerate   bool
	MappingDegenerate     bool
	ExcessiveMotion       bool
}

func (s Status) any() bool {
	return s.EmptyFrame || s.InsufficientKeypoints || s.EgoMotionDegenerate || s.MappingDegenerate || s.ExcessiveMotion
}

// Timings records per-stage wall-clock duration for one AddFrame call
// (original_source/VelodyneHDL/vtkSlam.h's GetEgoMotionOptimDuration /
// GetMappingOptimDuration, generalized to every stage).
type Timings struct {
	Organize  time.Duration
	Curvature time.Duration
	Keypoints time.Duration
	EgoMotion time.Duration
	Mapping   time.Duration
}

// FrameResult is AddFrame's per-frame output: the refined pose plus the
// diagnostics a host needs to render a trajectory and flag degraded frames.
type FrameResult struct {
	FrameID uuid.UUID

	Pose spatialmath.Pose
	TRel spatialmath.Pose

	Status   Status
	Warnings error // multierr chain of the soft failures above; nil if none fired

	NumEdgeKeypoints   int
	NumPlanarKeypoints int

	EgoMotionDegenerateAxes [6]bool
	MappingDegenerateAxes   [6]bool

	Timings Timings
}

// Engine is the persistent SLAM core. It is not safe for concurrent
// AddFrame calls; Reset is safe to call from another goroutine and fails
// with ErrResetWhileProcessing rather than racing a frame in flight.
type Engine struct {
	mu     sync.Mutex
	cfg    config.Options
	logger logging.Logger

	calibration    scanline.Calibration
	calibrationSet bool

	worldPose spatialmath.Pose
	prevRel   spatialmath.Pose

	prevEdges   []point.Keypoint
	prevPlanars []point.Keypoint

	edgeGrid   *voxelgrid.RollingGrid
	planarGrid *voxelgrid.RollingGrid

	trajectory []r3.Vector

	nbrFrameProcessed int

	edgeCountHistory   []float64
	planarCountHistory []float64
}

// New constructs an Engine from a validated configuration.
func New(cfg config.Options, logger logging.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "engine: invalid configuration")
	}
	return &Engine{
		cfg:        cfg,
		logger:     logger,
		worldPose:  spatialmath.Identity(),
		prevRel:    spatialmath.Identity(),
		edgeGrid:   voxelgrid.New(cfg.Grid.VoxelSize, cfg.Grid.NbVoxel, cfg.Grid.LeafVoxelFilterSize, cfg.Grid.MaxPointsPerVoxel),
		planarGrid: voxelgrid.New(cfg.Grid.VoxelSize, cfg.Grid.NbVoxel, cfg.Grid.LeafVoxelFilterSize, cfg.Grid.MaxPointsPerVoxel),
	}, nil
}

// SetSensorCalibration supplies the laser_id -> vertical-angle-sorted beam
// index mapping. Must be called before the first AddFrame.
func (e *Engine) SetSensorCalibration(laserIDToBeam map[uint16]int, numLasers int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if numLasers <= 0 {
		return errors.New("engine: numLasers must be positive")
	}
	e.calibration = scanline.Calibration{LaserIDToBeam: laserIDToBeam, NumLasers: numLasers}
	e.calibrationSet = true
	return nil
}

// IsCalibrationProvided reports whether SetSensorCalibration has run.
func (e *Engine) IsCalibrationProvided() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calibrationSet
}

// GetWorldTransform returns the current T_world as [rx,ry,rz,tx,ty,tz].
func (e *Engine) GetWorldTransform() [6]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.worldPose.Vector()
}

// Trajectory returns the growing polyline of sensor positions, the output
// side-channel carried alongside AddFrame's pose output.
func (e *Engine) Trajectory() []r3.Vector {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]r3.Vector, len(e.trajectory))
	copy(out, e.trajectory)
	return out
}

// KeypointCountStats summarizes the mean and standard deviation of edge and
// planar keypoint counts seen so far, a running health indicator for a
// host dashboard deciding whether the scene is feature-rich enough.
func (e *Engine) KeypointCountStats() (edgeMean, edgeStdDev, planarMean, planarStdDev float64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.edgeCountHistory) == 0 {
		return 0, 0, 0, 0, errors.New("engine: no frames processed yet")
	}
	if edgeMean, err = stats.Mean(e.edgeCountHistory); err != nil {
		return 0, 0, 0, 0, errors.Wrap(err, "engine: edge keypoint mean")
	}
	if edgeStdDev, err = stats.StandardDeviation(e.edgeCountHistory); err != nil {
		return 0, 0, 0, 0, errors.Wrap(err, "engine: edge keypoint stddev")
	}
	if planarMean, err = stats.Mean(e.planarCountHistory); err != nil {
		return 0, 0, 0, 0, errors.Wrap(err, "engine: planar keypoint mean")
	}
	if planarStdDev, err = stats.StandardDeviation(e.planarCountHistory); err != nil {
		return 0, 0, 0, 0, errors.Wrap(err, "engine: planar keypoint stddev")
	}
	return edgeMean, edgeStdDev, planarMean, planarStdDev, nil
}

// Reset clears the rolling grid, T_rel, T_world, the trajectory and
// NbrFrameProcessed — the state that persists only until an explicit reset.
// Sensor calibration is retained.
func (e *Engine) Reset() error {
	if !e.mu.TryLock() {
		return ErrResetWhileProcessing
	}
	defer e.mu.Unlock()

	e.worldPose = spatialmath.Identity()
	e.prevRel = spatialmath.Identity()
	e.prevEdges = nil
	e.prevPlanars = nil
	e.edgeGrid.Reset()
	e.planarGrid.Reset()
	e.trajectory = nil
	e.nbrFrameProcessed = 0
	e.edgeCountHistory = nil
	e.planarCountHistory = nil
	return nil
}

// OnlyComputeKeypoints runs components A-C only (organizer, curvature
// analysis, keypoint selection) and returns the input annotated with
// Curvature, DepthGap, BeamAngle, Valid and Label, for diagnostic display.
// It does not touch engine state.
func (e *Engine) OnlyComputeKeypoints(points []point.Point) ([]point.Point, error) {
	e.mu.Lock()
	cal, ok := e.calibration, e.calibrationSet
	cfg := e.cfg
	e.mu.Unlock()
	if !ok {
		return nil, ErrCalibrationMissing
	}

	result, err := scanline.Organize(points, cal)
	if err != nil {
		return nil, errors.Wrap(err, "engine: only_compute_keypoints organize")
	}
	curvature.Analyze(result.Lines, cfg.Keypoints.NeighborWidth)
	keypoint.Select(result.Lines, cfg.Keypoints, cfg.MinDistanceToSensor)

	return annotate(points, result), nil
}

// AddFrame consumes one point cloud, updates T_world and the rolling grid,
// and appends to the trajectory. Only ErrCalibrationMissing is a hard
// error; every other failure mode is reported via FrameResult.Status and
// the frame still produces a (possibly dead-reckoned) pose.
func (e *Engine) AddFrame(points []point.Point) (FrameResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.calibrationSet {
		return FrameResult{}, ErrCalibrationMissing
	}

	var timings Timings
	var status Status

	t0 := time.Now()
	result, err := scanline.Organize(points, e.calibration)
	timings.Organize = time.Since(t0)
	if err != nil {
		e.logger.Warnw("organizer rejected frame, treating as empty", "err", err)
		status.EmptyFrame = true
	} else if countPoints(result.Lines) == 0 {
		status.EmptyFrame = true
	}

	if status.EmptyFrame {
		return e.finishEmptyFrame(status, timings), nil
	}

	t0 = time.Now()
	curvature.Analyze(result.Lines, e.cfg.Keypoints.NeighborWidth)
	timings.Curvature = time.Since(t0)

	t0 = time.Now()
	keypoint.Select(result.Lines, e.cfg.Keypoints, e.cfg.MinDistanceToSensor)
	timings.Keypoints = time.Since(t0)

	edges, planars := keypoint.Extract(result.Lines)
	e.edgeCountHistory = append(e.edgeCountHistory, float64(len(edges)))
	e.planarCountHistory = append(e.planarCountHistory, float64(len(planars)))

	if len(edges) < e.cfg.MinEdgeKeypoints || len(planars) < e.cfg.MinPlanarKeypoints {
		status.InsufficientKeypoints = true
		return e.finishExtrapolatedFrame(status, timings, len(edges), len(planars)), nil
	}

	initialGuess := e.prevRel
	if !e.cfg.Undistortion.ConstantVelocityPrior {
		initialGuess = spatialmath.Identity()
	}

	t0 = time.Now()
	egoRes := registration.EgoMotion(
		edges, planars, e.prevEdges, e.prevPlanars,
		initialGuess, e.cfg.EgoMotion, e.cfg.Undistortion,
		e.cfg.MinPointToLineOrEdgeDistance, e.cfg.MaxDistBetweenTwoFrames,
	)
	timings.EgoMotion = time.Since(t0)

	tRel := egoRes.Pose
	if egoRes.Degenerate {
		status.EgoMotionDegenerate = true
		e.logger.Warnw("ego-motion optimization degenerate, falling back to previous relative transform", "frame", e.nbrFrameProcessed)
		tRel = e.prevRel
	}
	if egoRes.ExcessiveMotion {
		status.ExcessiveMotion = true
		return e.finishExtrapolatedFrame(status, timings, len(edges), len(planars)), nil
	}

	worldGuess := e.worldPose.Compose(tRel)
	skipMapping := e.nbrFrameProcessed < e.cfg.Mapping.WarmupFrames

	var finalPose spatialmath.Pose
	var mappingAxes [6]bool
	mappingIterations := 0
	if skipMapping {
		finalPose = worldGuess
	} else {
		t0 = time.Now()
		mapRes := registration.Mapping(
			edges, planars, e.edgeGrid, e.planarGrid,
			worldGuess, e.cfg.Mapping, e.cfg.Undistortion,
			e.cfg.MinPointToLineOrEdgeDistance, e.cfg.Grid.SubmapNbVoxel,
		)
		timings.Mapping = time.Since(t0)
		mappingAxes = mapRes.DegenerateAxes
		mappingIterations = mapRes.Iterations

		if mapRes.Degenerate {
			status.MappingDegenerate = true
			e.logger.Warnw("mapping optimization degenerate, falling back to ego-motion pose", "frame", e.nbrFrameProcessed)
			finalPose = worldGuess
		} else {
			finalPose = mapRes.Pose
		}
		tRel = registration.RelativeTransform(e.worldPose, finalPose)
		registration.InsertKeypoints(edges, planars, finalPose, e.edgeGrid, e.planarGrid, e.cfg.Undistortion)
	}

	frameIdx := e.nbrFrameProcessed
	e.worldPose = finalPose
	e.prevRel = tRel
	e.prevEdges = edges
	e.prevPlanars = planars
	e.trajectory = append(e.trajectory, finalPose.Translation)
	e.nbrFrameProcessed++

	e.logger.Debugw("frame processed",
		"frame", frameIdx,
		"status", status,
		"egoIterations", egoRes.Iterations,
		"mappingIterations", mappingIterations,
		"poseDelta", tRel.TranslationNorm(),
		"angularVelocity", tRel.AngularVelocity(1.0),
	)

	return FrameResult{
		FrameID:                 uuid.New(),
		Pose:                    finalPose,
		TRel:                    tRel,
		Status:                  status,
		Warnings:                warningsOf(status),
		NumEdgeKeypoints:        len(edges),
		NumPlanarKeypoints:      len(planars),
		EgoMotionDegenerateAxes: egoRes.DegenerateAxes,
		MappingDegenerateAxes:   mappingAxes,
		Timings:                 timings,
	}, nil
}

// finishEmptyFrame handles an empty or rejected frame: T_rel is reported as
// identity, but T_world advances by the previous T_rel (dead-reckoning
// against the last known velocity, not the reported identity) so a sensor
// stall doesn't snap the trajectory to a halt the instant it resumes.
func (e *Engine) finishEmptyFrame(status Status, timings Timings) FrameResult {
	e.logger.Warnw("empty frame, dead-reckoning", "frame", e.nbrFrameProcessed)
	e.worldPose = e.worldPose.Compose(e.prevRel)
	e.trajectory = append(e.trajectory, e.worldPose.Translation)
	e.nbrFrameProcessed++
	return FrameResult{
		FrameID:  uuid.New(),
		Pose:     e.worldPose,
		TRel:     spatialmath.Identity(),
		Status:   status,
		Warnings: warningsOf(status),
		Timings:  timings,
	}
}

// finishExtrapolatedFrame implements the InsufficientKeypoints and
// ExcessiveMotion policies shared shape: ego-motion (and mapping) are
// skipped, T_rel carries forward the last known relative transform
// (constant-velocity extrapolation), and the map is left untouched.
func (e *Engine) finishExtrapolatedFrame(status Status, timings Timings, numEdge, numPlanar int) FrameResult {
	if status.ExcessiveMotion {
		e.logger.Warnw("excessive motion between frames, extrapolating pose", "frame", e.nbrFrameProcessed, "edges", numEdge, "planars", numPlanar)
	} else {
		e.logger.Warnw("insufficient keypoints, extrapolating pose", "frame", e.nbrFrameProcessed, "edges", numEdge, "planars", numPlanar)
	}
	e.worldPose = e.worldPose.Compose(e.prevRel)
	e.trajectory = append(e.trajectory, e.worldPose.Translation)
	e.nbrFrameProcessed++
	return FrameResult{
		FrameID:            uuid.New(),
		Pose:               e.worldPose,
		TRel:               e.prevRel,
		Status:             status,
		Warnings:           warningsOf(status),
		NumEdgeKeypoints:   numEdge,
		NumPlanarKeypoints: numPlanar,
		Timings:            timings,
	}
}

func warningsOf(status Status) error {
	if !status.any() {
		return nil
	}
	var err error
	if status.EmptyFrame {
		err = multierr.Append(err, errors.New("empty frame"))
	}
	if status.InsufficientKeypoints {
		err = multierr.Append(err, errors.New("insufficient keypoints"))
	}
	if status.EgoMotionDegenerate {
		err = multierr.Append(err, errors.New("ego-motion optimization degenerate"))
	}
	if status.MappingDegenerate {
		err = multierr.Append(err, errors.New("mapping optimization degenerate"))
	}
	if status.ExcessiveMotion {
		err = multierr.Append(err, errors.New("excessive motion between frames"))
	}
	return err
}

func countPoints(lines []point.Line) int {
	n := 0
	for _, l := range lines {
		n += len(l.Points)
	}
	return n
}

// annotate rewrites the organizer's per-line Curvature/Label/etc. fields
// back into the caller's original point order via the forward mapping.
func annotate(original []point.Point, result scanline.Result) []point.Point {
	out := make([]point.Point, len(original))
	copy(out, original)
	for srcIdx, addr := range result.Forward {
		out[srcIdx] = result.Lines[addr.Beam].Points[addr.Position]
	}
	return out
}
