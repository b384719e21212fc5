package retry

// SetRand replaces the random source of a jitter delayer.
func SetRand(d BackoffDelayer, f func() float64) {
	switch j := d.(type) {
	case *FullJitter:
		j.rand = f
	case *EqualJitter:
		j.rand = f
	}
}

var AttemptCeiling = attemptCeiling
