// Package activity classifies live audio as speaking or silent. A Detector
// samples a Source once per tick, applies exponential smoothing to the raw
// level and compares the result against a runtime-adjustable threshold.
package activity
