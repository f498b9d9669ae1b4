package normalize

import "fmt"

var sizeUnits = []string{"B", "KB", "MB", "GB"}

// VideoQuality maps a frame size to a tier name by pixel count
func VideoQuality(width, height int) string {
	pixels := width * height
	switch {
	case pixels >= 1920*1080:
		return "1080p"
	case pixels >= 1280*720:
		return "720p"
	case pixels >= 854*480:
		return "480p"
	case pixels >= 640*360:
		return "360p"
	default:
		return "240p"
	}
}

// EstimateImageSize guesses a JPEG size at half a byte per pixel
func EstimateImageSize(width, height int) string {
	return FormatSize(float64(width) * float64(height) * 0.5)
}

// EstimateVideoSize guesses 30 seconds of video at 0.1 bytes per pixel per second
func EstimateVideoSize(width, height int) string {
	return FormatSize(float64(width) * float64(height) * 0.1 * 30)
}

// FormatSize renders a byte count with one decimal, dividing by 1024 until the
// value drops below 1024 or the units run out.
func FormatSize(bytes float64) string {
	if bytes <= 0 {
		return "0 B"
	}
	unit := 0
	for bytes >= 1024 && unit < len(sizeUnits)-1 {
		bytes /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f %s", bytes, sizeUnits[unit])
}
