/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package telnet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQSidePeerInitiatedEnableAccepted(t *testing.T) {
	var s qSide
	accept, refuse := s.receiveEnable(true)
	require.True(t, accept)
	require.False(t, refuse)
	require.True(t, s.enabled())
}

func TestQSidePeerInitiatedEnableRefused(t *testing.T) {
	var s qSide
	accept, refuse := s.receiveEnable(false)
	require.False(t, accept)
	require.True(t, refuse)
	require.False(t, s.enabled())
}

func TestQSideSteadyStateYesNeverAnswersConfirmation(t *testing.T) {
	var s qSide
	s.receiveEnable(true)
	require.True(t, s.enabled())
	accept, refuse := s.receiveEnable(true)
	require.False(t, accept)
	require.False(t, refuse)
}

func TestQSideLocalRequestThenPeerConfirms(t *testing.T) {
	var s qSide
	send := s.requestEnable()
	require.True(t, send)
	require.Equal(t, qWantYes, s.state)

	// Peer's confirmation (e.g. DO in reply to our WILL) never triggers a
	// second outbound command.
	accept, refuse := s.receiveEnable(true)
	require.False(t, accept)
	require.False(t, refuse)
	require.True(t, s.enabled())
}

func TestQSideDoubleRequestEnableOnlySendsOnce(t *testing.T) {
	var s qSide
	require.True(t, s.requestEnable())
	require.False(t, s.requestEnable())
}

func TestQSideDisableRequestWhileWantingEnableQueuesOpposite(t *testing.T) {
	var s qSide
	s.requestEnable()
	require.Equal(t, qWantYes, s.state)

	send := s.requestDisable()
	require.False(t, send)
	require.True(t, s.queue)

	// Peer accepts the original enable: the side goes to YES and nothing
	// is sent; receiveEnable does not act on the queued disable here.
	accept, refuse := s.receiveEnable(true)
	require.False(t, accept)
	require.False(t, refuse)
	require.Equal(t, qYes, s.state)
}

func TestQSideEnableRequestWhileWantingDisableQueuesOpposite(t *testing.T) {
	var s qSide
	s.receiveEnable(true)
	require.True(t, s.requestDisable())
	require.Equal(t, qWantNo, s.state)

	require.False(t, s.requestEnable())
	require.True(t, s.queue)

	// Peer confirms the disable (WONT/DONT echo); queued enable fires.
	sendReply := s.receiveDisable()
	require.False(t, sendReply)
	require.Equal(t, qWantYes, s.state)
	require.False(t, s.queue)
}

func TestQSideReceiveDisableFromSteadyYes(t *testing.T) {
	var s qSide
	s.receiveEnable(true)
	send := s.receiveDisable()
	require.True(t, send)
	require.False(t, s.enabled())
}

func TestQSideReceiveDisableFromNoIsNoOp(t *testing.T) {
	var s qSide
	send := s.receiveDisable()
	require.False(t, send)
	require.False(t, s.enabled())
}
