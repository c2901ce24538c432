// Package model defines the normalized vehicle record produced by the
// mapper and the raw payload produced by the fetcher.
package model

// Shape identifies which upstream response variant a record was mapped from.
type Shape string

const (
	// ShapeMinimal carries only name, battery, range, picture and location.
	ShapeMinimal Shape = "minimal"
	// ShapeExtended carries the full device, sharing and IoT property set.
	ShapeExtended Shape = "extended"
)

// FieldStatus reports whether a derived field could be produced.
type FieldStatus string

const (
	FieldAvailable   FieldStatus = "available"
	FieldUnavailable FieldStatus = "unavailable"
)

// EncryptInfo is the material needed to decrypt the protected field.
type EncryptInfo struct {
	Key          string `json:"key"`
	IV           string `json:"iv"`
	EncryptValue string `json:"encryptValue"`
}

// Complete reports whether all three parts are present.
func (e EncryptInfo) Complete() bool {
	return e.Key != "" && e.IV != "" && e.EncryptValue != ""
}

// DecryptedField is the plaintext of EncryptInfo, or the reason it is missing.
type DecryptedField struct {
	Status FieldStatus `json:"status"`
	Value  string      `json:"value,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

// Location is the last reported position of the vehicle.
type Location struct {
	Longitude        float64 `json:"longitude"`
	Latitude         float64 `json:"latitude"`
	Altitude         float64 `json:"altitude"`
	CoordinateSystem string  `json:"coordinateSystem,omitempty"`
	LocationTime     string  `json:"locationTime,omitempty"`
	Address          string  `json:"address,omitempty"`
}

// HasFix reports whether the coordinates look like a real fix rather than
// the zero value upstream sends when the vehicle has no position.
func (l *Location) HasFix() bool {
	return l != nil && l.Longitude != 0 && l.Latitude != 0
}

// IotProperty is one named telemetry channel of the extended shape.
type IotProperty struct {
	Name         string `json:"name"`
	Identify     string `json:"identify"`
	Value        string `json:"value"`
	Time         string `json:"time"`
	DBUpdateTime string `json:"dbUpdateTime,omitempty"`
	Describe     string `json:"describe,omitempty"`
}

// VehicleData is the canonical snapshot of one vehicle. JSON names match the
// upstream response. Numeric quantities that upstream sends as strings stay
// strings in canonical decimal form; an empty string or nil pointer means
// the field was absent.
type VehicleData struct {
	Shape Shape `json:"-"`

	VinNo               string `json:"vinNo,omitempty"`
	DeviceName          string `json:"deviceName,omitempty"`
	BindStartTime       string `json:"bindStartTime,omitempty"`
	Fate                string `json:"fate,omitempty"`
	VehicleName         string `json:"vehicleName,omitempty"`
	VehiclePicURL       string `json:"vehiclePicUrl,omitempty"`
	VehicleBackPicURL   string `json:"vehicleBackPicUrl,omitempty"`
	VehicleScalePicURL  string `json:"vehicleScalePicUrl,omitempty"`
	VehicleType         string `json:"vehicleType,omitempty"`
	VehicleTypeName     string `json:"vehicleTypeName,omitempty"`
	VehicleTypeDetailID *int   `json:"vehicleTypeDetailId,omitempty"`

	// Battery and range.
	Bmssoc                     string `json:"bmssoc,omitempty"`
	HmiRidableMile             string `json:"hmiRidableMile,omitempty"`
	HmiRidableMileAbnormalShow string `json:"hmiRidableMileAbnormalShow,omitempty"`
	MaxMileage                 string `json:"maxMileage,omitempty"`
	MaxRangeMileage            string `json:"maxRangeMileage,omitempty"`
	TotalRideMile              string `json:"totalRideMile,omitempty"`
	ChargeState                string `json:"chargeState,omitempty"`
	WhetherChargeState         *bool  `json:"whetherChargeState,omitempty"`
	FullChargeTime             string `json:"fullChargeTime,omitempty"`
	ExpectFullTimeDescribe     string `json:"expectFullTimeDescribe,omitempty"`

	// Monthly riding statistics.
	RideMileageMonth          string `json:"rideMileageMonth,omitempty"`
	RidingTimeMonth           string `json:"ridingTimeMonth,omitempty"`
	RidingTimeMonthUnitMinute string `json:"ridingTimeMonthUnitMinute,omitempty"`
	AvgVelocityMonth          string `json:"avgVelocityMonth,omitempty"`
	GreenContribution         string `json:"greenContribution,omitempty"`
	CyclingEventStatisticFlag *bool  `json:"cyclingEventStatisticFlag,omitempty"`

	// Connectivity.
	GsmRxLev            string `json:"gsmRxLev,omitempty"`
	GsmRxLevValue       string `json:"gsmRxLevValue,omitempty"`
	BluetoothAddress    string `json:"bluetoothAddress,omitempty"`
	HmiBluetoothAddress string `json:"hmiBluetoothAddress,omitempty"`
	WifiAddress         string `json:"wifiAddress,omitempty"`
	BluetoothSearch     *bool  `json:"bluetoothSearch,omitempty"`
	OnlineStatus        string `json:"onlineStatus,omitempty"`

	// Vehicle state.
	Pressure           string `json:"pressure,omitempty"`
	PressureValue      string `json:"pressureValue,omitempty"`
	HeadLockState      string `json:"headLockState,omitempty"`
	RideState          string `json:"rideState,omitempty"`
	OtaVersion         string `json:"otaVersion,omitempty"`
	OpenCushionFlag    *bool  `json:"openCushionFlag,omitempty"`
	OpenStorageBoxFlag *bool  `json:"openStorageBoxFlag,omitempty"`
	LoudlySearchCar    *int   `json:"loudlySearchCar,omitempty"`

	// Sharing and binding.
	ShareName      string `json:"shareName,omitempty"`
	IsShared       string `json:"isShared,omitempty"`
	ShareUserID    string `json:"shareUserId,omitempty"`
	ShareEndTime   string `json:"shareEndTime,omitempty"`
	BindingUserID  *int64 `json:"bindingUserId,omitempty"`
	CarMaster      string `json:"carMaster,omitempty"`
	BindDate       string `json:"bindDate,omitempty"`
	FirstBindDate  string `json:"firstBindDate,omitempty"`
	ActivationDate string `json:"activationDate,omitempty"`
	LastUseDate    *int64 `json:"lastUseDate,omitempty"`

	// Capabilities.
	RedPoint             *int   `json:"redPoint,omitempty"`
	NavigationType       *int   `json:"navigationType,omitempty"`
	Navigation           string `json:"navigation,omitempty"`
	Projection           string `json:"projection,omitempty"`
	MotoPlay             *int   `json:"motoPlay,omitempty"`
	SupportNetworkUnlock *int   `json:"supportNetworkUnlock,omitempty"`
	SupportUnlock        *int   `json:"supportUnlock,omitempty"`
	IntelligentType      string `json:"intelligentType,omitempty"`
	DeviceType           *int   `json:"deviceType,omitempty"`
	BroadcastType        string `json:"broadcastType,omitempty"`
	ResidualSeconds      string `json:"residualSeconds,omitempty"`

	// Service subscription.
	RechargeEndDate       string `json:"rechargeEndDate,omitempty"`
	ServiceRechargeStatus string `json:"serviceRechargeStatus,omitempty"`

	// IoT platform identity.
	MmiUUID       string `json:"mmiUuid,omitempty"`
	ProductKey    string `json:"productKey,omitempty"`
	IotInstanceID string `json:"iotInstanceId,omitempty"`
	RefreshTime   string `json:"refreshTime,omitempty"`

	GaodeLicenseVinNo string `json:"gaodeLincenseVinNo,omitempty"`
	GaodeLicenseID    string `json:"gaodeLincenseId,omitempty"`

	Location      *Location       `json:"location,omitempty"`
	EncryptInfo   *EncryptInfo    `json:"encryptInfo,omitempty"`
	Decrypted     *DecryptedField `json:"decrypted,omitempty"`
	IotProperties []IotProperty   `json:"iotProperties,omitempty"`
}

// Property returns the IoT property with the given identify key.
func (v *VehicleData) Property(identify string) (IotProperty, bool) {
	for _, p := range v.IotProperties {
		if p.Identify == identify {
			return p, true
		}
	}
	return IotProperty{}, false
}

// Clone returns a deep copy, so enrichment never mutates a published record.
func (v *VehicleData) Clone() *VehicleData {
	if v == nil {
		return nil
	}
	out := *v
	if v.Location != nil {
		loc := *v.Location
		out.Location = &loc
	}
	if v.EncryptInfo != nil {
		ei := *v.EncryptInfo
		out.EncryptInfo = &ei
	}
	if v.Decrypted != nil {
		d := *v.Decrypted
		out.Decrypted = &d
	}
	if v.IotProperties != nil {
		out.IotProperties = append([]IotProperty(nil), v.IotProperties...)
	}
	return out.cloneScalars()
}

func (v VehicleData) cloneScalars() *VehicleData {
	v.VehicleTypeDetailID = cloneInt(v.VehicleTypeDetailID)
	v.LoudlySearchCar = cloneInt(v.LoudlySearchCar)
	v.RedPoint = cloneInt(v.RedPoint)
	v.NavigationType = cloneInt(v.NavigationType)
	v.MotoPlay = cloneInt(v.MotoPlay)
	v.SupportNetworkUnlock = cloneInt(v.SupportNetworkUnlock)
	v.SupportUnlock = cloneInt(v.SupportUnlock)
	v.DeviceType = cloneInt(v.DeviceType)
	v.BindingUserID = cloneInt64(v.BindingUserID)
	v.LastUseDate = cloneInt64(v.LastUseDate)
	v.WhetherChargeState = cloneBool(v.WhetherChargeState)
	v.CyclingEventStatisticFlag = cloneBool(v.CyclingEventStatisticFlag)
	v.BluetoothSearch = cloneBool(v.BluetoothSearch)
	v.OpenCushionFlag = cloneBool(v.OpenCushionFlag)
	v.OpenStorageBoxFlag = cloneBool(v.OpenStorageBoxFlag)
	return &v
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
