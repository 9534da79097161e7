package compare

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Sentinels written on every failure.
const (
	FailureConfidence = 0.0
	FailureDistance   = 1.0
)

// InvalidArgumentsMessage is reported when the command is not given exactly two images.
const InvalidArgumentsMessage = "Invalid arguments"

// Result is either a successful verdict or a failure record; Failed tells which.
// Threshold is only meaningful on success and Err only on failure.
type Result struct {
	Match      bool
	Confidence float64
	Distance   float64
	Threshold  float64
	Err        string

	failed bool
}

// Success builds the record for a completed verification.
// Confidence is 1 - distance and is deliberately left unclamped.
func Success(verified bool, distance, threshold float64) Result {
	return Result{
		Match:      verified,
		Confidence: 1 - distance,
		Distance:   distance,
		Threshold:  threshold,
	}
}

// Failure builds the uniform negative record carrying message.
func Failure(message string) Result {
	return Result{
		Match:      false,
		Confidence: FailureConfidence,
		Distance:   FailureDistance,
		Err:        message,
		failed:     true,
	}
}

// InvalidArguments is the usage-error record.
func InvalidArguments() Result {
	return Failure(InvalidArgumentsMessage)
}

// Failed reports whether r is a failure record.
func (r Result) Failed() bool {
	return r.failed
}

type successRecord struct {
	Match      bool    `json:"match"`
	Confidence float64 `json:"confidence"`
	Distance   float64 `json:"distance"`
	Threshold  float64 `json:"threshold"`
}

type failureRecord struct {
	Match      bool    `json:"match"`
	Confidence float64 `json:"confidence"`
	Distance   float64 `json:"distance"`
	Error      string  `json:"error"`
}

type anyRecord struct {
	Match      bool     `json:"match"`
	Confidence float64  `json:"confidence"`
	Distance   float64  `json:"distance"`
	Threshold  *float64 `json:"threshold"`
	Error      *string  `json:"error"`
}

// MarshalJSON writes threshold on success and error on failure, never both.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.failed {
		return json.Marshal(failureRecord{
			Match:      r.Match,
			Confidence: r.Confidence,
			Distance:   r.Distance,
			Error:      r.Err,
		})
	}
	return json.Marshal(successRecord{
		Match:      r.Match,
		Confidence: r.Confidence,
		Distance:   r.Distance,
		Threshold:  r.Threshold,
	})
}

// UnmarshalJSON treats any record carrying an error key as a failure.
func (r *Result) UnmarshalJSON(data []byte) error {
	var rec anyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*r = Result{
		Match:      rec.Match,
		Confidence: rec.Confidence,
		Distance:   rec.Distance,
	}
	if rec.Error != nil {
		r.Err = *rec.Error
		r.failed = true
		return nil
	}
	if rec.Threshold != nil {
		r.Threshold = *rec.Threshold
	}
	return nil
}
