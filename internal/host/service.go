package host

import (
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"
	"github.com/google/uuid"

	"hap-ble-bridge/internal/hap"
)

// Service groups host characteristics under one service type.
type Service struct {
	*service.S
	UUID            uuid.UUID
	Characteristics []*Characteristic
}

// NewService creates an empty service.
func NewService(id uuid.UUID) *Service {
	return &Service{S: service.New(hap.ShortName(id)), UUID: id}
}

// Add appends c to the service.
func (s *Service) Add(c *Characteristic) *Characteristic {
	s.AddC(c.C)
	return s.adopt(c)
}

// adopt tracks a characteristic the underlying service already holds.
func (s *Service) adopt(c *Characteristic) *Characteristic {
	s.Characteristics = append(s.Characteristics, c)
	return c
}

// Characteristic returns the first characteristic of the given type.
func (s *Service) Characteristic(id uuid.UUID) *Characteristic {
	for _, c := range s.Characteristics {
		if c.UUID == id {
			return c
		}
	}
	return nil
}

// AccessoryInformation is the fixed 3E service.
type AccessoryInformation struct {
	*Service

	Identify         *Characteristic
	Manufacturer     *Characteristic
	Model            *Characteristic
	Name             *Characteristic
	SerialNumber     *Characteristic
	FirmwareRevision *Characteristic
	HardwareRevision *Characteristic
}

// NewAccessoryInformation builds the information service with name preset.
func NewAccessoryInformation(name string) *AccessoryInformation {
	info := service.NewAccessoryInformation()
	hw := characteristic.NewHardwareRevision()
	info.AddC(hw.C)

	s := &AccessoryInformation{Service: &Service{S: info.S, UUID: hap.ServiceAccessoryInformation}}
	s.Identify = s.adopt(wrap(hap.CharIdentify, hap.FormatBool, info.Identify.C, boolValue{info.Identify.Bool}))
	s.Manufacturer = s.adopt(text(hap.CharManufacturer, info.Manufacturer.String))
	s.Model = s.adopt(text(hap.CharModel, info.Model.String))
	s.Name = s.adopt(text(hap.CharName, info.Name.String))
	s.SerialNumber = s.adopt(text(hap.CharSerialNumber, info.SerialNumber.String))
	s.FirmwareRevision = s.adopt(text(hap.CharFirmwareRevision, info.FirmwareRevision.String))
	s.HardwareRevision = s.adopt(text(hap.CharHardwareRevision, hw.String))

	s.Identify.Description = "Identify"
	s.Manufacturer.Description = "Manufacturer"
	s.Model.Description = "Model"
	s.Name.Description = "Name"
	s.SerialNumber.Description = "Serial Number"
	s.FirmwareRevision.Description = "Firmware Revision"
	s.HardwareRevision.Description = "Hardware Revision"

	s.Identify.UpdateValue(false)
	for _, c := range []*Characteristic{s.Manufacturer, s.Model, s.SerialNumber, s.FirmwareRevision, s.HardwareRevision} {
		c.UpdateValue("")
	}
	s.Name.UpdateValue(name)
	return s
}

func text(id uuid.UUID, c *characteristic.String) *Characteristic {
	return wrap(id, hap.FormatString, c.C, stringValue{c})
}

// BridgingState is the fixed 62 service. Reachable starts false.
type BridgingState struct {
	*Service

	Reachable           *Characteristic
	LinkQuality         *Characteristic
	AccessoryIdentifier *Characteristic
	Category            *Characteristic
}

// NewBridgingState builds the bridging-state service for one accessory.
func NewBridgingState(identifier string) *BridgingState {
	s := &BridgingState{Service: NewService(hap.ServiceBridgingState)}

	reachable := characteristic.NewReachable()
	s.Reachable = s.Add(wrap(hap.CharReachable, hap.FormatBool, reachable.C, boolValue{reachable.Bool}))
	s.Reachable.Description = "Reachable"

	lq := characteristic.NewLinkQuality()
	s.LinkQuality = s.Add(wrap(hap.CharLinkQuality, hap.FormatUint8, lq.C, intValue{Int: lq.Int, format: hap.FormatUint8}))
	s.LinkQuality.Description = "Link Quality"

	id := characteristic.NewAccessoryIdentifier()
	s.AccessoryIdentifier = s.Add(text(hap.CharAccessoryIdentifier, id.String))
	s.AccessoryIdentifier.Description = "Accessory Identifier"

	// 1-16
	category := characteristic.NewCategory()
	s.Category = s.Add(wrap(hap.CharCategory, hap.FormatUint16, category.C, intValue{Int: category.Int, format: hap.FormatUint16}))
	s.Category.Description = "Category"

	s.Reachable.UpdateValue(false)
	s.LinkQuality.UpdateValue(uint8(1))
	s.AccessoryIdentifier.UpdateValue(identifier)
	s.Category.UpdateValue(uint16(1))
	return s
}
