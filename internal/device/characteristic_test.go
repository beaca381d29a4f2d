package device_test

import (
	"errors"
	"testing"

	"github.com/srg/gattcache/internal/device"
	"github.com/srg/gattcache/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type CharacteristicTestSuite struct {
	testutils.RegistrySuite

	sensor *testutils.FakePeripheral
	periph *device.Peripheral
}

// SetupTest connects a peripheral with a Nordic UART pair, a battery level and a read-only
// body sensor location, covering every capability
func (suite *CharacteristicTestSuite) SetupTest() {
	suite.RegistrySuite.SetupTest()

	suite.sensor = testutils.NewFakePeripheral("AA:BB:CC:DD:EE:FF", "Sensor").
		WithService("6E400001-B5A3-F393-E0A9-E50E24DCCA9E").
		WithCharacteristic("6E400003-B5A3-F393-E0A9-E50E24DCCA9E", "notify", nil).
		WithCharacteristic("6E400002-B5A3-F393-E0A9-E50E24DCCA9E", "writewithoutresponse", nil).
		WithService("180F").
		WithCharacteristic("2A19", "read,write,notify", []byte{64}).
		WithDescriptor("2901", []byte("Battery")).
		WithDescriptor("2902", []byte{0x00, 0x00}).
		WithService("180D").
		WithCharacteristic("2A38", "read", []byte{1})
	suite.periph = suite.Connect(suite.sensor)
	suite.Delegate.Reset()
}

func (suite *CharacteristicTestSuite) characteristic(serviceUUID, uuid string) *device.Characteristic {
	c, err := suite.periph.Characteristic(serviceUUID, uuid)
	suite.Require().NoError(err, "characteristic %s/%s MUST be committed", serviceUUID, uuid)
	return c.Base()
}

func (suite *CharacteristicTestSuite) TestConcatenate() {
	// GOAL: Verify concatenate mode appends successive fragments
	//
	// TEST SCENARIO: Concatenate on → fragments [01], [02], [03] notified in order → value is [01 02 03]

	tx := suite.characteristic("6e400001-b5a3-f393-e0a9-e50e24dcca9e", "6e400003-b5a3-f393-e0a9-e50e24dcca9e")
	tx.SetConcatenate(true)

	fake := suite.sensor.Characteristic("6E400001-B5A3-F393-E0A9-E50E24DCCA9E", "6E400003-B5A3-F393-E0A9-E50E24DCCA9E")
	for _, fragment := range [][]byte{{0x01}, {0x02}, {0x03}} {
		suite.Transport.Notify(suite.sensor, fake, fragment)
	}
	suite.Transport.Pump()

	suite.Assert().Equal([]byte{0x01, 0x02, 0x03}, tx.Value(), "fragments MUST be appended in arrival order")
	suite.Assert().Equal(3, suite.Delegate.Count(testutils.EventCharacteristicChanged), "every fragment MUST be reported")

	suite.Run("clear starts a new value", func() {
		tx.ClearValue()
		suite.Transport.Notify(suite.sensor, fake, []byte{0x04})
		suite.Transport.Pump()
		suite.Assert().Equal([]byte{0x04}, tx.Value(), "first fragment after a clear MUST start a fresh buffer")
	})

	suite.Run("replace mode", func() {
		tx.SetConcatenate(false)
		suite.Transport.Notify(suite.sensor, fake, []byte{0x05})
		suite.Transport.Pump()
		suite.Assert().Equal([]byte{0x05}, tx.Value(), "replace mode MUST overwrite the buffer")
	})
}

func (suite *CharacteristicTestSuite) TestRead() {
	// GOAL: Verify reads update the cache and report the change
	//
	// TEST SCENARIO: Read battery level → value cached → characteristic-changed names the node

	battery := suite.characteristic("180f", "2a19")
	suite.Require().NoError(battery.Read())
	suite.Transport.Pump()

	suite.Assert().Equal([]byte{64}, battery.Value())
	last, ok := suite.Delegate.Last(testutils.EventCharacteristicChanged)
	suite.Require().True(ok, "read MUST report a characteristic change")
	suite.Assert().Same(battery, last.Characteristic.Base())
	suite.Assert().Equal("180f", last.Service.Base().UUID())
	suite.Assert().Same(suite.periph, last.Peripheral)

	level, ok := battery.Node().(*device.BatteryLevel).Level()
	suite.Assert().True(ok)
	suite.Assert().Equal(uint8(64), level, "specialized node MUST decode the cached value")

	display, ok := battery.DisplayValue()
	suite.Assert().True(ok)
	suite.Assert().Equal("64%", display)

	suite.Run("read failure travels up four layers", func() {
		suite.sensor.Characteristic("180F", "2A19").ReadErr = errors.New("insufficient authentication")
		suite.Delegate.Reset()

		suite.Require().NoError(battery.Read())
		suite.Transport.Pump()

		errs := suite.Delegate.Errors()
		suite.Require().Len(errs, 1)
		suite.Assert().Equal([]string{
			"internal error",
			"peripheral AA:BB:CC:DD:EE:FF",
			"service 180f",
			"characteristic 2a19: insufficient authentication",
		}, device.LayeredDescription(errs[0]))
		suite.Assert().Equal([]byte{64}, battery.Value(), "failed read MUST keep the cached value")

		var layered *device.Error
		suite.Require().ErrorAs(errs[0], &layered)
		suite.Assert().Equal(device.LevelPeripheral, layered.Level, "outermost layer MUST be the peripheral")
	})

	suite.Run("capability", func() {
		tx := suite.characteristic("6e400001b5a3f393e0a9e50e24dcca9e", "6e400003b5a3f393e0a9e50e24dcca9e")
		before := suite.Transport.CallCount("ReadValue")
		err := tx.Read()

		var capErr *device.CapabilityError
		suite.Assert().ErrorAs(err, &capErr, "notify-only characteristic MUST refuse reads")
		suite.Assert().ErrorIs(err, device.ErrUnsupported)
		suite.Assert().Equal(before, suite.Transport.CallCount("ReadValue"), "refused read MUST NOT reach the transport")
	})
}

func (suite *CharacteristicTestSuite) TestWrite() {
	// GOAL: Verify the write procedure follows the properties and the caller's preference
	//
	// TEST SCENARIO: Write with response → completion event; write without response → no event; unsupported → capability error

	suite.Run("with response", func() {
		battery := suite.characteristic("180f", "2a19")
		suite.Require().NoError(battery.Write([]byte{10}, true))
		suite.Transport.Pump()

		suite.Assert().Equal([][]byte{{10}}, suite.sensor.Characteristic("180F", "2A19").Written)
		suite.Assert().Equal([]testutils.EventKind{testutils.EventWriteComplete}, suite.Delegate.Kinds())
		suite.Assert().Empty(battery.Value(), "write MUST NOT update the cached value")
	})

	suite.Run("without response", func() {
		suite.Delegate.Reset()
		rx := suite.characteristic("6e400001b5a3f393e0a9e50e24dcca9e", "6e400002b5a3f393e0a9e50e24dcca9e")
		suite.Require().NoError(rx.Write([]byte("hello"), true), "preference MUST fall back to write without response")
		suite.Transport.Pump()

		suite.Assert().Equal([][]byte{[]byte("hello")}, suite.sensor.Characteristic("6E400001-B5A3-F393-E0A9-E50E24DCCA9E", "6E400002-B5A3-F393-E0A9-E50E24DCCA9E").Written)
		suite.Assert().Empty(suite.Delegate.Kinds(), "write without response MUST NOT report completion")
	})

	suite.Run("write error", func() {
		suite.Delegate.Reset()
		suite.sensor.Characteristic("180F", "2A19").WriteErr = errors.New("write not permitted")
		battery := suite.characteristic("180f", "2a19")
		suite.Require().NoError(battery.Write([]byte{11}, true))
		suite.Transport.Pump()

		errs := suite.Delegate.Errors()
		suite.Require().Len(errs, 1)
		suite.Assert().ErrorContains(errs[0], "write not permitted")
		suite.Assert().Zero(suite.Delegate.Count(testutils.EventWriteComplete))
	})

	suite.Run("unsupported", func() {
		location := suite.characteristic("180d", "2a38")
		suite.Assert().ErrorIs(location.Write([]byte{1}, true), device.ErrUnsupported)
		suite.Assert().ErrorIs(location.Write([]byte{1}, false), device.ErrUnsupported)
	})
}

func (suite *CharacteristicTestSuite) TestNotify() {
	// GOAL: Verify subscription state is confirmed by the transport
	//
	// TEST SCENARIO: StartNotifying → notify-state-changed, IsNotifying → notification replaces value → StopNotifying

	battery := suite.characteristic("180f", "2a19")
	suite.Require().NoError(battery.StartNotifying())
	suite.Assert().False(battery.IsNotifying(), "state MUST wait for the transport confirmation")
	suite.Transport.Pump()

	suite.Assert().True(battery.IsNotifying())
	suite.Assert().Equal([]testutils.EventKind{testutils.EventNotifyStateChanged}, suite.Delegate.Kinds())

	suite.Transport.Notify(suite.sensor, suite.sensor.Characteristic("180F", "2A19"), []byte{42})
	suite.Transport.Pump()
	suite.Assert().Equal([]byte{42}, battery.Value())

	suite.Require().NoError(battery.StopNotifying())
	suite.Transport.Pump()
	suite.Assert().False(battery.IsNotifying())

	location := suite.characteristic("180d", "2a38")
	suite.Assert().ErrorIs(location.StartNotifying(), device.ErrUnsupported, "read-only characteristic MUST refuse notifications")
}

func (suite *CharacteristicTestSuite) TestDescriptors() {
	// GOAL: Verify descriptor reads, writes and the client configuration guard
	//
	// TEST SCENARIO: Read user description → descriptor-changed → write it → write CCCD refused

	battery := suite.characteristic("180f", "2a19")
	suite.Assert().Len(battery.Descriptors(), 2, "descriptors MUST be attached with the characteristic")

	desc, err := battery.Descriptor("2901")
	suite.Require().NoError(err)
	suite.Assert().IsType(&device.UserDescription{}, desc, "user description MUST be specialized")

	suite.Require().NoError(desc.Base().Read())
	suite.Transport.Pump()

	text, ok := desc.(*device.UserDescription).Text()
	suite.Assert().True(ok)
	suite.Assert().Equal("Battery", text)
	last, ok := suite.Delegate.Last(testutils.EventDescriptorChanged)
	suite.Require().True(ok, "read MUST report a descriptor change")
	suite.Assert().Same(desc.Base(), last.Descriptor.Base())
	suite.Assert().Same(battery, last.Characteristic.Base())

	suite.Require().NoError(desc.Base().Write([]byte("Main")))
	suite.Transport.Pump()
	suite.Assert().Equal([][]byte{[]byte("Main")}, suite.sensor.Descriptor("180F", "2A19", "2901").Written)
	suite.Assert().Equal(2, suite.Delegate.Count(testutils.EventDescriptorChanged))

	cccd, err := battery.Descriptor("2902")
	suite.Require().NoError(err)
	suite.Assert().ErrorIs(cccd.Base().Write([]byte{0x01, 0x00}), device.ErrUnsupported, "CCCD MUST only change through notifications")

	_, err = battery.Descriptor("2904")
	var notFound *device.NotFoundError
	suite.Require().ErrorAs(err, &notFound)
	suite.Assert().Equal([]string{"180f", "2a19", "2904"}, notFound.IDs)
}

func (suite *CharacteristicTestSuite) TestDetached() {
	// GOAL: Verify operations on a disconnected tree fail fast
	//
	// TEST SCENARIO: Keep node references → disconnect → every operation returns ErrNotConnected

	battery := suite.characteristic("180f", "2a19")
	desc, err := battery.Descriptor("2901")
	suite.Require().NoError(err)

	suite.Require().NoError(suite.periph.Record().Disconnect())
	suite.Transport.Pump()

	suite.Assert().ErrorIs(battery.Read(), device.ErrNotConnected)
	suite.Assert().ErrorIs(battery.Write([]byte{1}, true), device.ErrNotConnected)
	suite.Assert().ErrorIs(battery.StartNotifying(), device.ErrNotConnected)
	suite.Assert().ErrorIs(desc.Base().Read(), device.ErrNotConnected)
	suite.Assert().ErrorIs(battery.Service().StartOver(), device.ErrNotConnected)

	suite.Run("late events are dropped", func() {
		suite.Delegate.Reset()
		suite.Transport.Notify(suite.sensor, suite.sensor.Characteristic("180F", "2A19"), []byte{1})
		suite.Transport.Pump()
		suite.Assert().Empty(suite.Delegate.Kinds(), "events for a disconnected peripheral MUST be dropped")
	})
}

func TestCharacteristicTestSuite(t *testing.T) {
	suite.Run(t, new(CharacteristicTestSuite))
}
