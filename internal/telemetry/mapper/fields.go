package mapper

import (
	"fmt"
	"math"

	"github.com/bestk/zeeho-widgets/internal/telemetry/model"
)

// field maps one top-level scalar of the upstream object.
type field struct {
	name  string
	apply func(v *model.VehicleData, raw any) error
}

func stringField(name string, dst func(*model.VehicleData) *string) field {
	return field{name: name, apply: func(v *model.VehicleData, raw any) error {
		s, err := toString(name, raw)
		if err != nil {
			return err
		}
		*dst(v) = s
		return nil
	}}
}

func numericField(name string, dst func(*model.VehicleData) *string) field {
	return field{name: name, apply: func(v *model.VehicleData, raw any) error {
		s, err := toNumeric(name, raw)
		if err != nil {
			return err
		}
		*dst(v) = s
		return nil
	}}
}

func intField(name string, dst func(*model.VehicleData) **int) field {
	return field{name: name, apply: func(v *model.VehicleData, raw any) error {
		i, err := toInt(name, raw)
		if err != nil {
			return err
		}
		if i > math.MaxInt || i < math.MinInt {
			return &MappingError{Kind: OutOfRange, Field: name, Detail: fmt.Sprintf("%d overflows int", i)}
		}
		n := int(i)
		*dst(v) = &n
		return nil
	}}
}

func int64Field(name string, dst func(*model.VehicleData) **int64) field {
	return field{name: name, apply: func(v *model.VehicleData, raw any) error {
		i, err := toInt(name, raw)
		if err != nil {
			return err
		}
		*dst(v) = &i
		return nil
	}}
}

func boolField(name string, dst func(*model.VehicleData) **bool) field {
	return field{name: name, apply: func(v *model.VehicleData, raw any) error {
		b, err := toBool(name, raw)
		if err != nil {
			return err
		}
		*dst(v) = &b
		return nil
	}}
}

// fields lists every scalar of the extended shape, in upstream order.
// location, encryptInfo and iotProperties are mapped separately.
var fields = []field{
	stringField("vinNo", func(v *model.VehicleData) *string { return &v.VinNo }),
	stringField("deviceName", func(v *model.VehicleData) *string { return &v.DeviceName }),
	stringField("bindStartTime", func(v *model.VehicleData) *string { return &v.BindStartTime }),
	stringField("fate", func(v *model.VehicleData) *string { return &v.Fate }),
	stringField("vehicleName", func(v *model.VehicleData) *string { return &v.VehicleName }),
	stringField("vehiclePicUrl", func(v *model.VehicleData) *string { return &v.VehiclePicURL }),
	stringField("vehicleBackPicUrl", func(v *model.VehicleData) *string { return &v.VehicleBackPicURL }),
	stringField("shareName", func(v *model.VehicleData) *string { return &v.ShareName }),
	stringField("isShared", func(v *model.VehicleData) *string { return &v.IsShared }),
	numericField("rideMileageMonth", func(v *model.VehicleData) *string { return &v.RideMileageMonth }),
	numericField("ridingTimeMonth", func(v *model.VehicleData) *string { return &v.RidingTimeMonth }),
	numericField("ridingTimeMonthUnitMinute", func(v *model.VehicleData) *string { return &v.RidingTimeMonthUnitMinute }),
	numericField("avgVelocityMonth", func(v *model.VehicleData) *string { return &v.AvgVelocityMonth }),
	numericField("bmssoc", func(v *model.VehicleData) *string { return &v.Bmssoc }),
	numericField("hmiRidableMile", func(v *model.VehicleData) *string { return &v.HmiRidableMile }),
	numericField("gsmRxLev", func(v *model.VehicleData) *string { return &v.GsmRxLev }),
	stringField("gsmRxLevValue", func(v *model.VehicleData) *string { return &v.GsmRxLevValue }),
	stringField("bluetoothAddress", func(v *model.VehicleData) *string { return &v.BluetoothAddress }),
	stringField("hmiBluetoothAddress", func(v *model.VehicleData) *string { return &v.HmiBluetoothAddress }),
	stringField("chargeState", func(v *model.VehicleData) *string { return &v.ChargeState }),
	stringField("fullChargeTime", func(v *model.VehicleData) *string { return &v.FullChargeTime }),
	stringField("pressure", func(v *model.VehicleData) *string { return &v.Pressure }),
	stringField("pressureValue", func(v *model.VehicleData) *string { return &v.PressureValue }),
	stringField("headLockState", func(v *model.VehicleData) *string { return &v.HeadLockState }),
	stringField("rideState", func(v *model.VehicleData) *string { return &v.RideState }),
	numericField("greenContribution", func(v *model.VehicleData) *string { return &v.GreenContribution }),
	stringField("otaVersion", func(v *model.VehicleData) *string { return &v.OtaVersion }),
	stringField("shareUserId", func(v *model.VehicleData) *string { return &v.ShareUserID }),
	int64Field("bindingUserId", func(v *model.VehicleData) **int64 { return &v.BindingUserID }),
	stringField("carMaster", func(v *model.VehicleData) *string { return &v.CarMaster }),
	stringField("vehicleType", func(v *model.VehicleData) *string { return &v.VehicleType }),
	stringField("vehicleTypeName", func(v *model.VehicleData) *string { return &v.VehicleTypeName }),
	intField("redPoint", func(v *model.VehicleData) **int { return &v.RedPoint }),
	stringField("hmiRidableMileAbnormalShow", func(v *model.VehicleData) *string { return &v.HmiRidableMileAbnormalShow }),
	stringField("expectFullTimeDescribe", func(v *model.VehicleData) *string { return &v.ExpectFullTimeDescribe }),
	intField("navigationType", func(v *model.VehicleData) **int { return &v.NavigationType }),
	stringField("navigation", func(v *model.VehicleData) *string { return &v.Navigation }),
	stringField("projection", func(v *model.VehicleData) *string { return &v.Projection }),
	intField("motoPlay", func(v *model.VehicleData) **int { return &v.MotoPlay }),
	stringField("wifiAddress", func(v *model.VehicleData) *string { return &v.WifiAddress }),
	boolField("bluetoothSearch", func(v *model.VehicleData) **bool { return &v.BluetoothSearch }),
	intField("vehicleTypeDetailId", func(v *model.VehicleData) **int { return &v.VehicleTypeDetailID }),
	stringField("shareEndTime", func(v *model.VehicleData) *string { return &v.ShareEndTime }),
	stringField("residualSeconds", func(v *model.VehicleData) *string { return &v.ResidualSeconds }),
	intField("supportNetworkUnlock", func(v *model.VehicleData) **int { return &v.SupportNetworkUnlock }),
	stringField("intelligentType", func(v *model.VehicleData) *string { return &v.IntelligentType }),
	numericField("totalRideMile", func(v *model.VehicleData) *string { return &v.TotalRideMile }),
	numericField("maxMileage", func(v *model.VehicleData) *string { return &v.MaxMileage }),
	intField("deviceType", func(v *model.VehicleData) **int { return &v.DeviceType }),
	stringField("broadcastType", func(v *model.VehicleData) *string { return &v.BroadcastType }),
	intField("supportUnlock", func(v *model.VehicleData) **int { return &v.SupportUnlock }),
	stringField("bindDate", func(v *model.VehicleData) *string { return &v.BindDate }),
	boolField("cyclingEventStatisticFlag", func(v *model.VehicleData) **bool { return &v.CyclingEventStatisticFlag }),
	boolField("whetherChargeState", func(v *model.VehicleData) **bool { return &v.WhetherChargeState }),
	stringField("firstBindDate", func(v *model.VehicleData) *string { return &v.FirstBindDate }),
	numericField("maxRangeMileage", func(v *model.VehicleData) *string { return &v.MaxRangeMileage }),
	stringField("onlineStatus", func(v *model.VehicleData) *string { return &v.OnlineStatus }),
	stringField("activationDate", func(v *model.VehicleData) *string { return &v.ActivationDate }),
	int64Field("lastUseDate", func(v *model.VehicleData) **int64 { return &v.LastUseDate }),
	stringField("rechargeEndDate", func(v *model.VehicleData) *string { return &v.RechargeEndDate }),
	boolField("openCushionFlag", func(v *model.VehicleData) **bool { return &v.OpenCushionFlag }),
	boolField("openStorageBoxFlag", func(v *model.VehicleData) **bool { return &v.OpenStorageBoxFlag }),
	intField("loudlySearchCar", func(v *model.VehicleData) **int { return &v.LoudlySearchCar }),
	stringField("mmiUuid", func(v *model.VehicleData) *string { return &v.MmiUUID }),
	stringField("productKey", func(v *model.VehicleData) *string { return &v.ProductKey }),
	stringField("iotInstanceId", func(v *model.VehicleData) *string { return &v.IotInstanceID }),
	stringField("serviceRechargeStatus", func(v *model.VehicleData) *string { return &v.ServiceRechargeStatus }),
	stringField("refreshTime", func(v *model.VehicleData) *string { return &v.RefreshTime }),
	stringField("vehicleScalePicUrl", func(v *model.VehicleData) *string { return &v.VehicleScalePicURL }),
	stringField("gaodeLincenseVinNo", func(v *model.VehicleData) *string { return &v.GaodeLicenseVinNo }),
	stringField("gaodeLincenseId", func(v *model.VehicleData) *string { return &v.GaodeLicenseID }),
}

// extendedMarkers only appear in the extended response shape.
var extendedMarkers = []string{
	"deviceName", "bindStartTime", "encryptInfo", "iotProperties",
	"productKey", "iotInstanceId", "mmiUuid", "refreshTime",
}

type required struct {
	name string
	get  func(*model.VehicleData) string
}

var (
	requiredCommon = []required{
		{"bmssoc", func(v *model.VehicleData) string { return v.Bmssoc }},
		{"hmiRidableMile", func(v *model.VehicleData) string { return v.HmiRidableMile }},
	}

	identifiers = []required{
		{"vinNo", func(v *model.VehicleData) string { return v.VinNo }},
		{"deviceName", func(v *model.VehicleData) string { return v.DeviceName }},
		{"vehicleName", func(v *model.VehicleData) string { return v.VehicleName }},
	}

	requiredByShape = map[model.Shape][]required{
		model.ShapeMinimal: {
			{"vehicleName", func(v *model.VehicleData) string { return v.VehicleName }},
		},
		model.ShapeExtended: {
			{"vinNo", func(v *model.VehicleData) string { return v.VinNo }},
		},
	}
)
