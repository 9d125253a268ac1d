package melcloud

// DeviceType identifies the kind of equipment behind a MELCloud adapter.
type DeviceType string

const (
	DeviceTypeAta     DeviceType = "ata"
	DeviceTypeAtw     DeviceType = "atw"
	DeviceTypeErv     DeviceType = "erv"
	DeviceTypeUnknown DeviceType = "unknown"
)

const (
	deviceTypeIntAta int64 = 0
	deviceTypeIntAtw int64 = 1
	deviceTypeIntErv int64 = 3
)

var deviceTypeLookup = map[int64]DeviceType{
	deviceTypeIntAta: DeviceTypeAta,
	deviceTypeIntAtw: DeviceTypeAtw,
	deviceTypeIntErv: DeviceTypeErv,
}

// TemperatureUnit is the unit the account has elected to use for all
// temperature values, MELCloud reports it per account rather than per device.
type TemperatureUnit string

const (
	UnitCelsius    TemperatureUnit = "celsius"
	UnitFahrenheit TemperatureUnit = "fahrenheit"
)

// AccessLevelGuest marks devices shared into the account as a guest, guests
// are not permitted to list unit information.
const AccessLevelGuest int64 = 4
