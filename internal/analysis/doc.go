// Package analysis inspects finished runs: operating-point portraits of
// one series against another, the operating points at threshold
// crossings, and the power spectrum of a series for driveline
// oscillations.
//
//	p, err := analysis.FromResult(res, "velocity", "rpm_engine")
//	fmt.Print(p.ASCII(70, 20))
package analysis
