package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVideoStateTransitions(t *testing.T) {
	cases := []struct {
		from, to VideoState
		ok       bool
	}{
		{VideoStateUploading, VideoStateValidating, true},
		{VideoStateValidating, VideoStateProcessing, true},
		{VideoStateValidating, VideoStateFailed, true},
		{VideoStateProcessing, VideoStateIndexed, true},
		{VideoStateProcessing, VideoStateFailed, true},
		{VideoStateIndexed, VideoStateDeleted, true},
		{VideoStateUploading, VideoStateIndexed, false},
		{VideoStateIndexed, VideoStateProcessing, false},
		{VideoStateFailed, VideoStateProcessing, false},
		{VideoStateDeleted, VideoStateUploading, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, c.from.CanTransition(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestVideoValidateIndexedRequiresDurationAndScenes(t *testing.T) {
	v := &Video{State: VideoStateIndexed}
	assert.Error(t, v.Validate(1))

	d := 30.0
	v.DurationS = &d
	assert.Error(t, v.Validate(0))
	assert.NoError(t, v.Validate(2))
}

func TestVideoValidateFailedRequiresErrorText(t *testing.T) {
	v := &Video{State: VideoStateFailed}
	assert.Error(t, v.Validate(0))

	msg := "fatal_media: probe failed"
	v.ErrorText = &msg
	assert.NoError(t, v.Validate(0))
}

func TestFaceProfileEnrolling(t *testing.T) {
	p := &FaceProfile{}
	assert.False(t, p.Enrolling())

	p.PhotoKeys = JSONStringArray{"people/o/p/a.jpg"}
	assert.True(t, p.Enrolling())

	msg := "no usable face found in any enrollment photo"
	p.ErrorText = &msg
	assert.False(t, p.Enrolling())
}
