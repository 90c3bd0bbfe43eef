package intent

import "strings"

// Operation 表示闭合枚举的设备操作名。未收录的操作仍可原样流转，
// 但按约定走默认估算路径。
type Operation string

const (
	OpCameraActivate   Operation = "CAMERA_ACTIVATE"
	OpCameraCapture    Operation = "CAMERA_CAPTURE"
	OpCameraStartVideo Operation = "CAMERA_START_VIDEO"
	OpCameraStopVideo  Operation = "CAMERA_STOP_VIDEO"
	OpWalletCreate     Operation = "WALLET_CREATE"
	OpWalletBalance    Operation = "WALLET_BALANCE"
	OpWalletTransfer   Operation = "WALLET_TRANSFER"
	OpAndroidInstall   Operation = "ANDROID_INSTALL"
	OpAndroidOpen      Operation = "ANDROID_OPEN"
	OpVisionAnalyze    Operation = "VISION_ANALYZE"
	OpNavStart         Operation = "NAV_START"
	OpNavStop          Operation = "NAV_STOP"
	OpOTACheck         Operation = "OTA_CHECK"
	OpOTAInstall       Operation = "OTA_INSTALL"
	OpSecurityMode     Operation = "SECURITY_MODE"
	OpMeshStatus       Operation = "MESH_STATUS"
	OpUINotify         Operation = "UI_NOTIFY"
)

// cameraPrefix 标记硬件层的相机操作族。
const cameraPrefix = "CAMERA_"

// Known 报告操作是否属于闭合枚举。新增操作必须加入本 switch，
// 否则会在估算时落入默认分支。
func (op Operation) Known() bool {
	switch op {
	case OpCameraActivate, OpCameraCapture, OpCameraStartVideo, OpCameraStopVideo,
		OpWalletCreate, OpWalletBalance, OpWalletTransfer,
		OpAndroidInstall, OpAndroidOpen,
		OpVisionAnalyze,
		OpNavStart, OpNavStop,
		OpOTACheck, OpOTAInstall, OpSecurityMode,
		OpMeshStatus, OpUINotify:
		return true
	default:
		return false
	}
}

// IsCamera 报告操作是否属于相机操作族。
func (op Operation) IsCamera() bool {
	return strings.HasPrefix(string(op), cameraPrefix)
}

// ParseOperation 将任意字符串规整为操作名。
func ParseOperation(raw string) Operation {
	return Operation(strings.ToUpper(strings.TrimSpace(raw)))
}

func (op Operation) String() string { return string(op) }
