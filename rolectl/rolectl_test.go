package rolectl_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hotpocket/hpcore/rolectl"
)

func TestValidatorDemotesAfterConsecutiveMisses(t *testing.T) {
	c := rolectl.New(rolectl.Validator, 3, 100)

	c.RecordRoundOutcome(false, 10, 10)
	c.RecordRoundOutcome(false, 10, 10)
	require.Equal(t, rolectl.Validator, c.Role())

	c.RecordRoundOutcome(false, 10, 10)
	require.Equal(t, rolectl.Observer, c.Role())
}

func TestValidatorDemotesWhenBehindThreshold(t *testing.T) {
	c := rolectl.New(rolectl.Validator, 100, 5)

	c.RecordRoundOutcome(true, 10, 20)
	require.Equal(t, rolectl.Observer, c.Role())
}

func TestContributingResetsMissCounter(t *testing.T) {
	c := rolectl.New(rolectl.Validator, 2, 100)

	c.RecordRoundOutcome(false, 10, 10)
	c.RecordRoundOutcome(true, 10, 10)
	c.RecordRoundOutcome(false, 10, 10)
	require.Equal(t, rolectl.Validator, c.Role())
}

func TestStartedObserverNeverPromotes(t *testing.T) {
	c := rolectl.New(rolectl.Observer, 3, 100)
	c.TryPromote(true, true)
	require.Equal(t, rolectl.Observer, c.Role())
}

func TestStartedValidatorRepromotesAfterMatchingRootAndCatchUp(t *testing.T) {
	c := rolectl.New(rolectl.Validator, 1, 100)
	c.RecordRoundOutcome(false, 10, 10)
	require.Equal(t, rolectl.Observer, c.Role())

	c.TryPromote(false, true)
	require.Equal(t, rolectl.Observer, c.Role())

	c.TryPromote(true, true)
	require.Equal(t, rolectl.Validator, c.Role())
}
