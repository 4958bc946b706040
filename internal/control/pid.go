package control

// PID is a scalar PID loop on an error signal. The integral is clamped to
// ±IntegralLimit when the limit is positive.
type PID struct {
	Kp            float64
	Ki            float64
	Kd            float64
	IntegralLimit float64
	integral      float64
	prevErr       float64
	prevT         float64
	first         bool
}

func NewPID(kp, ki, kd float64) *PID {
	return &PID{
		Kp:    kp,
		Ki:    ki,
		Kd:    kd,
		first: true,
	}
}

// Update advances the loop to time t. Repeated calls at the same t do not
// integrate.
func (p *PID) Update(err, t float64) float64 {
	if p.first {
		p.prevErr = err
		p.prevT = t
		p.first = false
		return p.Kp*err + p.Ki*p.integral
	}

	dt := t - p.prevT
	if dt > 0 {
		p.integral += err * dt
		if p.IntegralLimit > 0 {
			p.integral = max(-p.IntegralLimit, min(p.integral, p.IntegralLimit))
		}
		derivative := (err - p.prevErr) / dt

		u := p.Kp*err + p.Ki*p.integral + p.Kd*derivative

		p.prevErr = err
		p.prevT = t

		return u
	}
	return p.Kp*err + p.Ki*p.integral
}

func (p *PID) Integral() float64 { return p.integral }

// Reset clears integral and derivative state
func (p *PID) Reset() {
	p.integral = 0
	p.prevErr = 0
	p.first = true
}

// GetParams returns tunable parameters for live adjustment
func (p *PID) GetParams() map[string]float64 {
	return map[string]float64{
		"Kp": p.Kp,
		"Ki": p.Ki,
		"Kd": p.Kd,
	}
}

// SetParam adjusts a PID parameter
func (p *PID) SetParam(name string, value float64) {
	switch name {
	case "Kp":
		p.Kp = value
	case "Ki":
		p.Ki = value
	case "Kd":
		p.Kd = value
	}
}
