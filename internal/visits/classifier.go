package visits

import "github.com/mileusna/useragent"

const (
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
	DeviceDesktop = "Desktop"
	DeviceOther   = "Bot/Other"
)

// ClientInfo is what a Classifier extracts from a user-agent string.
// Empty Browser or OS means undetermined.
type ClientInfo struct {
	Browser     string
	OS          string
	DeviceClass string
}

// Classifier turns a raw user-agent string into ClientInfo.
type Classifier interface {
	Classify(userAgent string) ClientInfo
}

// UAClassifier classifies with github.com/mileusna/useragent.
type UAClassifier struct{}

func (UAClassifier) Classify(userAgent string) ClientInfo {
	ua := useragent.Parse(userAgent)
	return ClientInfo{
		Browser:     ua.Name,
		OS:          ua.OS,
		DeviceClass: deviceClass(ua.Mobile, ua.Tablet, ua.Desktop),
	}
}

// deviceClass applies the flags in priority order: mobile, tablet, desktop.
func deviceClass(mobile, tablet, desktop bool) string {
	switch {
	case mobile:
		return DeviceMobile
	case tablet:
		return DeviceTablet
	case desktop:
		return DeviceDesktop
	default:
		return DeviceOther
	}
}
