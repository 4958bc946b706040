package topology

func mech(id, src, srcHandle, dst, dstHandle string) Edge {
	return Edge{ID: id, Source: src, SourceHandle: srcHandle, Target: dst, TargetHandle: dstHandle, Type: EdgeMechanical}
}

func elec(id, src, dst string) Edge {
	return Edge{ID: id, Source: src, SourceHandle: "electrical", Target: dst, TargetHandle: "electrical", Type: EdgeElectrical}
}

func cat3516E() map[string]any {
	return map[string]any{"rpmIdle": 700.0, "rpmMax": 1800.0, "pRated": 1801000.0, "tPeak": 11220.0}
}

func singleRatio(ratio, eff float64) map[string]any {
	return map[string]any{"ratios": []any{ratio}, "efficiencies": []any{eff}}
}

var presets = map[string]struct {
	description string
	build       func() *GraphDoc
}{
	"diesel-793d": {"CAT 793D: 3516E diesel, 7-speed powershift, 16:1 final drive", diesel793D},
	"diesel-789d": {"CAT 789D: 3516C diesel, 6-speed powershift, 16:1 final drive", diesel789D},
	"ecvt-split":  {"Power-split eCVT: engine on carrier, MG1 on sun, MG2 on ring, 2-speed", ecvtSplit},
	"ecvt-detailed": {
		"Power-split eCVT with MG1 boost, MG2 directly on the ring, cR 0.015", ecvtDetailed,
	},
	"electric": {"Battery-electric: single traction motor, 2-speed, hub reduction", electric},
}

var presetOrder = []string{"diesel-793d", "diesel-789d", "ecvt-split", "ecvt-detailed", "electric"}

// Preset returns a fresh copy of a named graph document.
func Preset(name string) (*GraphDoc, bool) {
	p, ok := presets[name]
	if !ok {
		return nil, false
	}
	return p.build(), true
}

func PresetNames() []string {
	out := make([]string, len(presetOrder))
	copy(out, presetOrder)
	return out
}

func PresetDescription(name string) string {
	return presets[name].description
}

func diesel793D() *GraphDoc {
	return &GraphDoc{
		Name: "CAT 793D Diesel",
		Nodes: []Node{
			{ID: "engine", Type: "engine", Label: "CAT 3516E", Params: cat3516E()},
			{ID: "gearbox", Type: "gearbox", Label: "7-Speed Gearbox", Params: map[string]any{
				"ratios":       []any{4.59, 2.95, 1.94, 1.40, 1.0, 0.74, 0.65},
				"efficiencies": []any{0.97, 0.97, 0.97, 0.97, 0.97, 0.97, 0.97},
			}},
			{ID: "final_drive", Type: "finalDrive", Label: "Final Drive", Params: map[string]any{"ratio": 16.0, "efficiency": 0.96}},
			{ID: "vehicle", Type: "vehicle", Label: "CAT 793D", Params: map[string]any{
				"mEmpty": 159350.0, "mPayload": 190000.0, "rWheel": 1.78, "cR": 0.025, "vMax": 15.0,
			}},
		},
		Edges: []Edge{
			mech("e1", "engine", "shaft", "gearbox", "input"),
			mech("e2", "gearbox", "output", "final_drive", "input"),
			mech("e3", "final_drive", "output", "vehicle", "wheels"),
		},
	}
}

func diesel789D() *GraphDoc {
	return &GraphDoc{
		Name: "CAT 789D Diesel",
		Nodes: []Node{
			{ID: "engine", Type: "engine", Label: "CAT 3516C", Params: map[string]any{
				"rpmIdle": 700.0, "rpmMax": 1800.0, "pRated": 1417000.0, "tPeak": 8677.0,
				"torqueCurve": []any{
					[]any{700.0, 7347.0},
					[]any{1000.0, 8352.0},
					[]any{1200.0, 8677.0},
					[]any{1400.0, 8430.0},
					[]any{1650.0, 8058.0},
					[]any{1800.0, 7579.0},
				},
			}},
			{ID: "gearbox", Type: "gearbox", Label: "6-Speed Gearbox", Params: map[string]any{
				"ratios":       []any{4.70, 2.93, 1.88, 1.35, 1.0, 0.74},
				"efficiencies": []any{0.97, 0.97, 0.97, 0.97, 0.97, 0.97},
			}},
			{ID: "final_drive", Type: "finalDrive", Label: "Final Drive", Params: map[string]any{"ratio": 16.0, "efficiency": 0.96}},
			{ID: "vehicle", Type: "vehicle", Label: "CAT 789D", Params: map[string]any{
				"mEmpty": 143000.0, "mPayload": 181000.0, "rWheel": 1.60, "cR": 0.025, "vMax": 15.6,
			}},
		},
		Edges: []Edge{
			mech("e1", "engine", "shaft", "gearbox", "input"),
			mech("e2", "gearbox", "output", "final_drive", "input"),
			mech("e3", "final_drive", "output", "vehicle", "wheels"),
		},
	}
}

func battery200() map[string]any {
	return map[string]any{
		"capacityKwh": 200.0, "vNom": 700.0, "pMaxDischarge": 1000000.0, "pMaxCharge": 500000.0, "socInit": 0.6,
	}
}

func ecvtSplit() *GraphDoc {
	return &GraphDoc{
		Name: "eCVT Power-Split",
		Nodes: []Node{
			{ID: "engine", Type: "engine", Label: "CAT 3516E", Params: cat3516E()},
			{ID: "mg1", Type: "motor", Label: "MG1", Params: map[string]any{
				"pMax": 450000.0, "tMax": 3500.0, "rpmMax": 6000.0, "eta": 0.92,
			}},
			{ID: "mg1_reduction", Type: "gearbox", Label: "MG1 Reduction", Params: singleRatio(3.5, 0.97)},
			{ID: "planetary", Type: "planetary", Label: "Planetary", Params: map[string]any{"zSun": 30.0, "zRing": 90.0}},
			{ID: "post_ring", Type: "gearbox", Label: "Post-Ring", Params: singleRatio(1.0, 0.98)},
			{ID: "mg2", Type: "motor", Label: "MG2", Params: map[string]any{
				"pMax": 500000.0, "tMax": 5400.0, "rpmMax": 4000.0, "pBoost": 500000.0, "eta": 0.92,
			}},
			{ID: "gearbox", Type: "gearbox", Label: "2-Speed", Params: map[string]any{
				"ratios": []any{3.0, 1.0}, "efficiencies": []any{0.97, 0.97},
			}},
			{ID: "intermediate", Type: "gearbox", Label: "Intermediate", Params: singleRatio(2.85, 0.97)},
			{ID: "final_drive", Type: "gearbox", Label: "Final Drive", Params: singleRatio(10.83, 0.96)},
			{ID: "battery", Type: "battery", Label: "Battery", Params: battery200()},
			{ID: "vehicle", Type: "vehicle", Label: "CAT 793D", Params: map[string]any{
				"mEmpty": 159350.0, "mPayload": 189650.0, "rWheel": 1.78, "cR": 0.025, "vMax": 15.0,
			}},
		},
		Edges: []Edge{
			mech("e1", "engine", "shaft", "planetary", "carrier"),
			mech("e2", "mg1", "shaft-out", "mg1_reduction", "input"),
			mech("e3", "mg1_reduction", "output", "planetary", "sun"),
			mech("e4", "planetary", "ring", "post_ring", "input"),
			mech("e5", "post_ring", "output", "mg2", "shaft-in"),
			mech("e6", "mg2", "shaft-out", "gearbox", "input"),
			mech("e7", "gearbox", "output", "intermediate", "input"),
			mech("e8", "intermediate", "output", "final_drive", "input"),
			mech("e9", "final_drive", "output", "vehicle", "wheels"),
			elec("e10", "mg1", "battery"),
			elec("e11", "mg2", "battery"),
		},
	}
}

func ecvtDetailed() *GraphDoc {
	return &GraphDoc{
		Name: "eCVT Detailed",
		Nodes: []Node{
			{ID: "engine", Type: "engine", Label: "CAT 3516E", Params: cat3516E()},
			{ID: "mg1", Type: "motor", Label: "MG1", Params: map[string]any{
				"pMax": 250000.0, "pBoost": 450000.0, "tMax": 3500.0, "rpmMax": 6000.0, "eta": 0.92,
			}},
			{ID: "mg1_reduction", Type: "gearbox", Label: "MG1 Reduction", Params: singleRatio(3.5, 0.97)},
			{ID: "planetary", Type: "planetary", Label: "Planetary", Params: map[string]any{"zSun": 30.0, "zRing": 90.0}},
			{ID: "mg2", Type: "motor", Label: "MG2", Params: map[string]any{
				"pMax": 500000.0, "pBoost": 500000.0, "tMax": 5400.0, "rpmMax": 4000.0, "eta": 0.92,
			}},
			{ID: "gearbox", Type: "gearbox", Label: "2-Speed", Params: map[string]any{
				"ratios": []any{3.0, 1.0}, "efficiencies": []any{0.97, 0.97},
			}},
			{ID: "intermediate", Type: "gearbox", Label: "Intermediate", Params: singleRatio(2.85, 0.97)},
			{ID: "final_drive", Type: "gearbox", Label: "Hub Reduction", Params: singleRatio(10.83, 0.96)},
			{ID: "battery", Type: "battery", Label: "Battery", Params: battery200()},
			{ID: "vehicle", Type: "vehicle", Label: "CAT 793D", Params: map[string]any{
				"mEmpty": 159350.0, "mPayload": 190000.0, "rWheel": 1.78, "cR": 0.015, "vMax": 15.0,
			}},
		},
		Edges: []Edge{
			mech("e1", "engine", "shaft", "planetary", "carrier"),
			mech("e2", "mg1", "shaft-out", "mg1_reduction", "input"),
			mech("e3", "mg1_reduction", "output", "planetary", "sun"),
			mech("e4", "planetary", "ring", "mg2", "shaft-in"),
			mech("e5", "mg2", "shaft-out", "gearbox", "input"),
			mech("e6", "gearbox", "output", "intermediate", "input"),
			mech("e7", "intermediate", "output", "final_drive", "input"),
			mech("e8", "final_drive", "output", "vehicle", "wheels"),
			elec("e9", "mg1", "battery"),
			elec("e10", "mg2", "battery"),
		},
	}
}

func electric() *GraphDoc {
	return &GraphDoc{
		Name: "Battery Electric",
		Nodes: []Node{
			{ID: "traction", Type: "motor", Label: "Traction Motor", Params: map[string]any{
				"pMax": 500000.0, "pBoost": 500000.0, "tMax": 5400.0, "rpmMax": 4000.0, "eta": 0.92,
			}},
			{ID: "gearbox", Type: "gearbox", Label: "2-Speed", Params: map[string]any{
				"ratios": []any{3.0, 1.0}, "efficiencies": []any{0.97, 0.97},
			}},
			{ID: "intermediate", Type: "gearbox", Label: "Intermediate", Params: singleRatio(2.85, 0.97)},
			{ID: "final_drive", Type: "gearbox", Label: "Hub Reduction", Params: singleRatio(10.83, 0.96)},
			{ID: "battery", Type: "battery", Label: "Battery", Params: battery200()},
			{ID: "vehicle", Type: "vehicle", Label: "CAT 793D", Params: map[string]any{
				"mEmpty": 159350.0, "mPayload": 190000.0, "rWheel": 1.78, "cR": 0.025, "vMax": 15.0,
			}},
		},
		Edges: []Edge{
			mech("e1", "traction", "shaft-out", "gearbox", "input"),
			mech("e2", "gearbox", "output", "intermediate", "input"),
			mech("e3", "intermediate", "output", "final_drive", "input"),
			mech("e4", "final_drive", "output", "vehicle", "wheels"),
			elec("e5", "traction", "battery"),
		},
	}
}
