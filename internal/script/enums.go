package script

import "strings"

// ShotType is the framing distance of a shot.
type ShotType string

const (
	ShotExtremeWide    ShotType = "extreme_wide"
	ShotWide           ShotType = "wide"
	ShotMedium         ShotType = "medium"
	ShotCloseUp        ShotType = "close_up"
	ShotExtremeCloseUp ShotType = "extreme_close_up"
)

// CameraMovement describes how the camera moves during a shot.
type CameraMovement string

const (
	MovementStatic   CameraMovement = "static"
	MovementPan      CameraMovement = "pan"
	MovementTilt     CameraMovement = "tilt"
	MovementDolly    CameraMovement = "dolly"
	MovementZoom     CameraMovement = "zoom"
	MovementTracking CameraMovement = "tracking"
	MovementHandheld CameraMovement = "handheld"
)

var shotTypeAliases = map[string]ShotType{
	"extreme_wide":     ShotExtremeWide,
	"extreme wide":     ShotExtremeWide,
	"ews":              ShotExtremeWide,
	"establishing":     ShotExtremeWide,
	"wide":             ShotWide,
	"long":             ShotWide,
	"full":             ShotWide,
	"ws":               ShotWide,
	"medium":           ShotMedium,
	"mid":              ShotMedium,
	"ms":               ShotMedium,
	"close_up":         ShotCloseUp,
	"close up":         ShotCloseUp,
	"close-up":         ShotCloseUp,
	"closeup":          ShotCloseUp,
	"close":            ShotCloseUp,
	"cu":               ShotCloseUp,
	"extreme_close_up": ShotExtremeCloseUp,
	"extreme close up": ShotExtremeCloseUp,
	"extreme close-up": ShotExtremeCloseUp,
	"extreme closeup":  ShotExtremeCloseUp,
	"ecu":              ShotExtremeCloseUp,
}

var cameraMovementAliases = map[string]CameraMovement{
	"static":   MovementStatic,
	"fixed":    MovementStatic,
	"none":     MovementStatic,
	"pan":      MovementPan,
	"panning":  MovementPan,
	"tilt":     MovementTilt,
	"dolly":    MovementDolly,
	"push":     MovementDolly,
	"push_in":  MovementDolly,
	"zoom":     MovementZoom,
	"tracking": MovementTracking,
	"track":    MovementTracking,
	"follow":   MovementTracking,
	"handheld": MovementHandheld,
}

// NormalizeShotType maps free-text model output onto the shot type enum,
// defaulting to medium.
func NormalizeShotType(raw string) ShotType {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.TrimSuffix(key, " shot")
	if t, ok := shotTypeAliases[key]; ok {
		return t
	}
	return ShotMedium
}

// NormalizeCameraMovement maps free-text model output onto the camera
// movement enum, defaulting to static.
func NormalizeCameraMovement(raw string) CameraMovement {
	key := strings.ToLower(strings.TrimSpace(raw))
	if m, ok := cameraMovementAliases[key]; ok {
		return m
	}
	return MovementStatic
}
