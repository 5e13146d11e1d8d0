package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xkilldash9x/gatecrash/api/schemas"
)

func gestureImg(selector, alt, class string) schemas.ElementInfo {
	el := visibleEl(selector, "img", "")
	el.AltText = alt
	el.ClassName = class
	return el
}

func TestLivenessGestureLoopCompletes(t *testing.T) {
	defer goleak.VerifyNone(t)

	camera := &fakeCamera{}
	registry := &fakeCameraRegistry{camera: camera}
	pumper := &fakePumper{}

	// The challenge container stays up until a gesture has been presented on
	// the camera, then disappears.
	dom := &fakeDOM{
		Respond: func(pattern string, scanCount int) []schemas.ElementInfo {
			presented := camera.backgroundCount() > 0
			switch pattern {
			case "*":
				if presented {
					return nil
				}
				return []schemas.ElementInfo{
					visibleEl("#live", "div", "Show the gesture to your camera"),
					gestureImg("#g1", "Thumbs Up", "gesture-card"),
				}
			case "#live":
				if presented {
					return nil
				}
				return []schemas.ElementInfo{visibleEl("#live", "div", "")}
			default:
				return nil
			}
		},
	}

	input := &fakeInput{}
	env := newTestEnv(dom, input, &fakePerception{})
	env.Cameras = registry
	env.Pumper = pumper

	runner := newLivenessRunner(env)
	classification := schemas.ClassificationResult{ContainerSelector: "#live"}
	result := runner.run(context.Background(), NewSession("ctx-1"), classification)

	require.True(t, result.Success, "liveness failed: %s", result.ErrorMessage)
	assert.Equal(t, 1, camera.backgroundCount())
	assert.GreaterOrEqual(t, pumper.frameCount(), 1)
	assert.Equal(t, 1, registry.released)
}

func TestLivenessAttemptCeilingIsAFailureNotACrash(t *testing.T) {
	defer goleak.VerifyNone(t)

	camera := &fakeCamera{}
	dom := &fakeDOM{
		Respond: func(pattern string, scanCount int) []schemas.ElementInfo {
			switch pattern {
			case "*":
				return []schemas.ElementInfo{
					visibleEl("#live", "div", "Show the gesture to your camera"),
					gestureImg("#g1", "closed fist", "gesture-card"),
				}
			case "#live":
				return []schemas.ElementInfo{visibleEl("#live", "div", "")}
			default:
				return nil
			}
		},
	}

	env := newTestEnv(dom, &fakeInput{}, &fakePerception{})
	env.Cameras = &fakeCameraRegistry{camera: camera}
	env.Pumper = &fakePumper{}

	runner := newLivenessRunner(env)
	result := runner.run(context.Background(), NewSession("ctx-1"), schemas.ClassificationResult{ContainerSelector: "#live"})

	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "ceiling")
	// The gesture never changed, so the camera was loaded exactly once.
	assert.Equal(t, 1, camera.backgroundCount())
}

func TestLivenessWithoutCameraFailsCleanly(t *testing.T) {
	env := newTestEnv(&fakeDOM{}, &fakeInput{}, &fakePerception{})
	runner := newLivenessRunner(env)

	result := runner.run(context.Background(), NewSession("ctx-1"), schemas.ClassificationResult{})
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "virtual camera")
}

func TestLivenessCompletionNotConcludedFromFailedScan(t *testing.T) {
	dom := &fakeDOM{
		ScanErr: func(string, int) error { return errors.New("frame detached") },
	}
	env := newTestEnv(dom, &fakeInput{}, &fakePerception{})
	runner := newLivenessRunner(env)

	done, _ := runner.checkComplete(context.Background(), NewSession("ctx-1"), gridClassification())
	assert.False(t, done)
}

func TestFindGestureImagePicksShortestClassString(t *testing.T) {
	elements := []schemas.ElementInfo{
		gestureImg("#a", "thumbs up", "gesture-card gesture-card-hidden"),
		gestureImg("#b", "closed fist", "gesture-card"),
		visibleEl("#c", "div", "not an image"),
	}

	match := findGestureImage(elements)
	require.NotNil(t, match)
	assert.Equal(t, schemas.GestureClosedFist, match.Gesture.Name)
	assert.Equal(t, "#b", match.Element.Selector)
}

func TestFindGestureImageIgnoresUnknownAltText(t *testing.T) {
	elements := []schemas.ElementInfo{
		gestureImg("#a", "decorative banner", "hero"),
	}
	assert.Nil(t, findGestureImage(elements))
}

func TestMatchGestureIsCaseInsensitive(t *testing.T) {
	gesture, ok := matchGesture("Please show a THUMBS UP to the camera")
	require.True(t, ok)
	assert.Equal(t, schemas.GestureThumbsUp, gesture.Name)
}
