package telemetry

import (
	"context"
	"log/slog"

	"github.com/san-kum/drivesim/internal/component"
	"github.com/san-kum/drivesim/internal/drivetrain"
	"github.com/san-kum/drivesim/internal/dynamo"
	"github.com/san-kum/drivesim/internal/sim"
)

// Streamer sends every observed simulation sample as a burst of frames.
// It implements sim.Observer; the first write error stops the stream and
// is reported by Err.
type Streamer struct {
	ctx    context.Context
	d      *drivetrain.Drivetrain
	m      *Map
	w      Writer
	logger *slog.Logger
	grade  sim.GradeProfile

	frames int
	err    error
}

func NewStreamer(ctx context.Context, d *drivetrain.Drivetrain, m *Map, w Writer, grade sim.GradeProfile, logger *slog.Logger) *Streamer {
	if logger == nil {
		logger = slog.Default()
	}
	if grade == nil {
		grade = sim.ConstantGrade(0)
	}
	return &Streamer{ctx: ctx, d: d, m: m, w: w, grade: grade, logger: logger}
}

func (s *Streamer) OnSample(t float64, x dynamo.State, u dynamo.Control) {
	if s.err != nil {
		return
	}
	sample := s.d.ArrayToState(x)
	for k, v := range u {
		sample[k] = v
	}
	sample["time"] = t
	sample["velocity"] = s.d.Velocity(x)
	sample["grade"] = s.grade.Grade(t)

	speeds := s.d.AllSpeeds(x)
	for _, c := range s.d.Components() {
		a, ok := c.(component.Actuator)
		if !ok {
			continue
		}
		omega := speeds[c.Name()+"."+a.ShaftPort()]
		sample["rpm_"+c.Name()] = omega * component.RadPerSecToRpm
	}

	for _, f := range s.m.Encode(sample) {
		if err := s.w.WriteFrame(s.ctx, t, f); err != nil {
			s.err = err
			s.logger.Warn("telemetry stream stopped", "t", t, "err", err)
			return
		}
		s.frames++
	}
}

func (s *Streamer) Frames() int { return s.frames }

func (s *Streamer) Err() error { return s.err }

// Dump writes the frames of every output sample of res.
func Dump(ctx context.Context, res *sim.Result, m *Map, w Writer) (int, error) {
	n := 0
	for k, t := range res.Time {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		sample := res.Sample(k)
		sample["time"] = t
		for _, f := range m.Encode(sample) {
			if err := w.WriteFrame(ctx, t, f); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}
