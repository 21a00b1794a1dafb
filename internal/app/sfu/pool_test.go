package sfu

import (
	"context"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopClient struct {
	hangup func(uint64)
}

func (nopClient) CreateRoom(context.Context, uint64) error  { return nil }
func (nopClient) DestroyRoom(context.Context, uint64) error { return nil }
func (nopClient) Publish(context.Context, uint64, webrtc.SessionDescription) (Publication, error) {
	return Publication{}, nil
}
func (nopClient) Subscribe(context.Context, uint64, uint64) (Subscription, error) {
	return Subscription{}, nil
}
func (nopClient) Start(context.Context, uint64, webrtc.SessionDescription) error { return nil }
func (nopClient) Trickle(context.Context, uint64, webrtc.ICECandidateInit) error { return nil }
func (nopClient) Detach(context.Context, uint64) error                           { return nil }
func (c *nopClient) OnHangup(fn func(uint64))                                    { c.hangup = fn }

func TestPool_AcquirePicksLeastLoaded(t *testing.T) {
	p := NewPool(&nopClient{}, &nopClient{}, &nopClient{})

	var picks []int
	for range 4 {
		i, err := p.Acquire()
		require.NoError(t, err)
		picks = append(picks, i)
	}
	assert.Equal(t, []int{0, 1, 2, 0}, picks)

	p.Release(1)
	p.Release(1)
	i, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 1, i)
}

func TestPool_Empty(t *testing.T) {
	_, err := NewPool().Acquire()
	assert.ErrorIs(t, err, ErrNoServers)
}

func TestPool_OnHangupTagsServer(t *testing.T) {
	a, b := &nopClient{}, &nopClient{}
	p := NewPool(a, b)

	var server int
	var handle uint64
	p.OnHangup(func(s int, h uint64) { server, handle = s, h })

	b.hangup(9)
	assert.Equal(t, 1, server)
	assert.Equal(t, uint64(9), handle)
}

func TestRoomID_Stable(t *testing.T) {
	assert.Equal(t, RoomID("gen", "bar"), RoomID("gen", "bar"))
	assert.NotEqual(t, RoomID("gen", "bar"), RoomID("for", "bar"))
	assert.NotEqual(t, RoomID("ge", "nbar"), RoomID("gen", "bar"))
	assert.LessOrEqual(t, RoomID("gen", "bar"), uint64(1<<32-1))
}

func TestCodeAndIsWedged(t *testing.T) {
	assert.True(t, IsWedged(&Error{Code: CodePluginAttach}))
	assert.False(t, IsWedged(&Error{Code: CodeNoSuchRoom}))
	assert.Equal(t, 0, Code(ErrClosed))
}
