package rtctx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/concurra/internal/rterr"
)

func TestBackgroundNeverCancels(t *testing.T) {
	bg := Background()
	select {
	case <-bg.Done():
		t.Fatal("background context must never be done")
	case <-time.After(10 * time.Millisecond):
	}
	assert.Nil(t, bg.Err())
}

func TestWithCancelPropagatesToChildren(t *testing.T) {
	parent, cancel := WithCancel(Background())
	child, _ := WithCancel(parent)
	grandchild, _ := WithCancel(child)

	cancel()

	<-child.Done()
	<-grandchild.Done()
	require.NotNil(t, child.Err())
	assert.Equal(t, rterr.CodeContextCancelled, child.Err().Code)
	assert.Equal(t, rterr.CodeContextCancelled, grandchild.Err().Code)
}

func TestWithTimeoutExpires(t *testing.T) {
	ctx, cancel := WithTimeout(Background(), 10*time.Millisecond)
	defer cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context never expired")
	}
	require.NotNil(t, ctx.Err())
	assert.Equal(t, rterr.CodeContextDeadlineExceeded, ctx.Err().Code)
}

func TestWithDeadlineInheritsEarlierParentDeadline(t *testing.T) {
	parent, cancelParent := WithTimeout(Background(), 10*time.Millisecond)
	defer cancelParent()
	child, cancelChild := WithDeadline(parent, time.Now().Add(time.Hour))
	defer cancelChild()

	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("child never cancelled alongside parent's earlier deadline")
	}
	assert.Equal(t, rterr.CodeContextDeadlineExceeded, child.Err().Code)
}

func TestWithValueLookupWalksAncestors(t *testing.T) {
	type keyType int
	const key keyType = 1
	parent := WithValue(Background(), key, "hello")
	child, cancel := WithCancel(parent)
	defer cancel()

	assert.Equal(t, "hello", child.Value(key))
	assert.Nil(t, child.Value(keyType(2)))
}

func TestCancellationHookFiresOnce(t *testing.T) {
	defer ClearCancellationHook()

	fired := make(chan string, 4)
	SetCancellationHook(func(id string, err *rterr.Error) {
		fired <- id
	})

	ctx, cancel := WithCancel(Background())
	cancel()

	select {
	case id := <-fired:
		assert.Equal(t, ctx.ID(), id)
	case <-time.After(time.Second):
		t.Fatal("hook never fired")
	}
}
