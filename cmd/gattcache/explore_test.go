package main

import (
	"errors"
	"testing"

	"github.com/srg/gattcache/internal/device"
	"github.com/srg/gattcache/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type ExploreTestSuite struct {
	CommandTestSuite
}

func (suite *ExploreTestSuite) TestExploreTree() {
	// GOAL: Verify explore connects, reads and prints the committed tree with decoded values
	//
	// TEST SCENARIO: Heart rate monitor advertises → explore --read → tree shows services, characteristics, values and descriptors → link dropped afterwards

	monitor := suite.AddPeripheral(suite.LoadHeartRateMonitor(TestDeviceAddress1))

	out, err := suite.ExecuteCommand("explore", TestDeviceAddress1, "--read", "--timeout", "5s")
	suite.Require().NoError(err, "explore MUST succeed")

	suite.Assert().Contains(out, "Pulse [AA:00:00:00:00:01] committed")
	suite.Assert().Contains(out, "├── Device Information (180a)")
	suite.Assert().Contains(out, "Manufacturer Name String (2a29) [Read] = Acme")
	suite.Assert().Contains(out, "└── Battery Service (180f)")
	suite.Assert().Contains(out, "Battery Level (2a19)")
	suite.Assert().Contains(out, "= 72%")
	suite.Assert().Contains(out, "Client Characteristic Configuration (2902)")

	suite.Assert().Equal(4, suite.Transport.CallCount("ReadValue"), "every readable characteristic MUST be read once")
	suite.Assert().Equal(1, suite.Transport.CallCount("Disconnect"), "explore MUST disconnect when done")
	suite.Assert().False(suite.Transport.IsConnected(monitor), "link MUST be dropped")
}

func (suite *ExploreTestSuite) TestExploreJSONWithoutRead() {
	// GOAL: Verify explore without --read prints the structure with no values
	//
	// TEST SCENARIO: Nameless endpoint (policy would filter it) → explore by address → JSON tree without values, no reads issued

	suite.AddPeripheral(testutils.NewFakePeripheral(TestDeviceAddress2, "").
		WithRSSI(-110).
		WithService("180F").
		WithCharacteristic("2A19", "read,notify", []byte{50}))

	out, err := suite.ExecuteCommand("explore", "aa:00:00:00:00:02", "--format", "json", "--timeout", "5s")
	suite.Require().NoError(err, "explicitly requested endpoint MUST bypass the name and signal filters")

	suite.JSON().Assert(out, `{
		"id": "AA:00:00:00:00:02",
		"state": "committed",
		"services": [
			{
				"uuid": "180f",
				"name": "Battery Service",
				"characteristics": [
					{"uuid": "2a19", "name": "Battery Level", "notifying": false, "descriptors": []}
				]
			}
		]
	}`)
	suite.Assert().NotContains(out, `"value"`, "values MUST NOT be present without --read")
	suite.Assert().Zero(suite.Transport.CallCount("ReadValue"))
}

func (suite *ExploreTestSuite) TestExploreServiceFilter() {
	// GOAL: Verify --services narrows service discovery
	//
	// TEST SCENARIO: Monitor with three services → explore --services 180f → only the battery service is committed

	suite.AddPeripheral(suite.LoadHeartRateMonitor(TestDeviceAddress1))

	out, err := suite.ExecuteCommand("explore", TestDeviceAddress1, "--services", "180f", "--format", "json", "--timeout", "5s")
	suite.Require().NoError(err)

	suite.JSON().Assert(out, `{"services": [{"uuid": "180f"}]}`)
	suite.Assert().NotContains(out, `"180d"`, "filtered services MUST NOT be discovered")
}

func (suite *ExploreTestSuite) TestExploreNotFound() {
	// GOAL: Verify a missing endpoint ends with ErrDeviceNotFound once the time limit passes
	//
	// TEST SCENARIO: Nothing advertises → explore --timeout 100ms → ErrDeviceNotFound → scan stopped, nothing connected

	_, err := suite.ExecuteCommand("explore", TestDeviceAddress1, "--timeout", "100ms")
	suite.Require().Error(err)
	suite.Assert().ErrorIs(err, ErrDeviceNotFound)
	suite.Assert().Contains(err.Error(), TestDeviceAddress1)
	suite.Assert().False(suite.Transport.IsScanning(), "scan MUST be stopped")
	suite.Assert().Zero(suite.Transport.CallCount("Connect"))
}

func (suite *ExploreTestSuite) TestExploreConnectFailure() {
	// GOAL: Verify a failed connect surfaces the layered cache error
	//
	// TEST SCENARIO: Endpoint refuses the link → explore → internal error at endpoint level with the transport cause

	p := testutils.NewFakePeripheral(TestDeviceAddress1, "Grumpy")
	p.ConnectErr = errors.New("link refused")
	suite.AddPeripheral(p)

	_, err := suite.ExecuteCommand("explore", TestDeviceAddress1, "--timeout", "5s")
	suite.Require().Error(err)
	suite.Assert().ErrorIs(err, device.ErrInternal)
	suite.Assert().Equal("internal error\n  endpoint AA:00:00:00:00:01: link refused", FormatUserError(err))
}

func (suite *ExploreTestSuite) TestExploreConnectTimeout() {
	// GOAL: Verify the registry connect timeout ends the command
	//
	// TEST SCENARIO: Endpoint never answers → --connect-timeout 50ms → timeout error, attempt cancelled at the transport

	p := testutils.NewFakePeripheral(TestDeviceAddress1, "Silent")
	p.HoldConnect = true
	suite.AddPeripheral(p)

	_, err := suite.ExecuteCommand("explore", TestDeviceAddress1, "--connect-timeout", "50ms", "--timeout", "5s")
	suite.Require().Error(err)
	suite.Assert().ErrorIs(err, device.ErrTimeout)
	suite.Assert().Equal(1, suite.Transport.CallCount("Disconnect"), "timed out attempt MUST be cancelled")
}

func (suite *ExploreTestSuite) TestExploreArguments() {
	_, err := suite.ExecuteCommand("explore")
	suite.Require().Error(err, "address MUST be required")

	suite.Reset()
	_, err = suite.ExecuteCommand("explore", TestDeviceAddress1, "--format", "table")
	suite.Require().Error(err)
	suite.Assert().Contains(err.Error(), "invalid format 'table'")
}

func TestExploreTestSuite(t *testing.T) {
	suite.Run(t, new(ExploreTestSuite))
}
