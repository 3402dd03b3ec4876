package browser

import (
	"context"
	"time"

	"github.com/go-rod/rod/lib/input"
	"github.com/ysmood/gson"
)

// Surface is a document the pipeline can drive: the top-level page or the
// content of a nested iframe. Every blocking call is bounded by ctx.
type Surface interface {
	// WaitExists waits until selector matches an element in the DOM.
	// Visibility is not required.
	WaitExists(ctx context.Context, selector string) error

	// WaitVisible waits until selector matches a rendered, visible element.
	WaitVisible(ctx context.Context, selector string) error

	// Eval runs a JS function expression in the surface's context and
	// returns its JSON-serializable result.
	Eval(ctx context.Context, js string, args ...any) (gson.JSON, error)

	// Click performs a native pointer click on the first element matching selector.
	Click(ctx context.Context, selector string) error

	// Hover moves the pointer over the first element matching selector.
	Hover(ctx context.Context, selector string) error

	// Type focuses selector and enters text one character at a time,
	// sleeping delay between characters.
	Type(ctx context.Context, selector, text string, delay time.Duration) error

	// Press dispatches a single key press and release.
	Press(ctx context.Context, key input.Key) error
}

// Tab is the top-level browser tab owned by one pipeline run.
// It is not safe for concurrent use: all calls must be sequenced by the caller.
type Tab interface {
	Surface

	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error

	// URL returns the tab's current location.
	URL(ctx context.Context) (string, error)

	// ExpectNavigation arms a listener for the next page load. Call it before
	// the action that triggers the navigation, then call the returned func.
	// The returned func reports a timeout error when no load happens in time.
	ExpectNavigation(ctx context.Context, timeout time.Duration) func() error

	// Frame resolves the iframe matching selector to a Surface. It fails
	// with ErrCodeIframeNotFound when no such element exists and with
	// ErrCodeIframeUnavailable when the element exists without content.
	Frame(ctx context.Context, selector string) (Surface, error)

	// Console subscribes to console messages whose text starts with sentinel.
	// Messages are delivered on a channel of the given capacity until ctx ends;
	// the channel is closed afterwards. When the channel is full, messages are
	// dropped.
	Console(ctx context.Context, sentinel string, buffer int) (<-chan ConsoleMessage, error)

	// Screenshot captures the full page as PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	// HTML returns the serialized DOM of the top-level document.
	HTML(ctx context.Context) (string, error)
}

// ConsoleMessage is one console call that passed the sentinel filter.
type ConsoleMessage struct {
	// Text is every argument rendered as text and joined by a space.
	Text string

	// Payload is the resolved value of the argument following the sentinel,
	// when the page logged a separate object.
	Payload gson.JSON

	// HasPayload is false when the page logged a single string.
	HasPayload bool
}
