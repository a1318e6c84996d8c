package hwdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecommendedWorkerCountIdleHost(t *testing.T) {
	res := SystemResources{CPUCores: 16, LoadAvg1m: 0}
	assert.Equal(t, 8, RecommendedWorkerCount(res))
}

func TestRecommendedWorkerCountBusyHostFloorsAtOne(t *testing.T) {
	res := SystemResources{CPUCores: 4, LoadAvg1m: 4}
	assert.Equal(t, 1, RecommendedWorkerCount(res))
}

func TestRecommendedWorkerCountNoCoreInfoFallsBackToOne(t *testing.T) {
	assert.Equal(t, 1, RecommendedWorkerCount(SystemResources{}))
}

func TestRecommendedWorkerCountNeverExceedsCores(t *testing.T) {
	res := SystemResources{CPUCores: 2, LoadAvg1m: 0}
	assert.LessOrEqual(t, RecommendedWorkerCount(res), 2)
}
