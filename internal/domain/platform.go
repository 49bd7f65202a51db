package domain

import "fmt"

// Platform — закрытое множество поддерживаемых платформ.
//
// Диспатчеры выбираются по типизированному значению, а не по произвольной
// строке: неподдерживаемая платформа отсекается при ParsePlatform,
// а полнота покрытия Registry проверяется на старте.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformTwitter   Platform = "twitter"
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformYouTube   Platform = "youtube"
	PlatformReddit    Platform = "reddit"
	PlatformDiscord   Platform = "discord"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformTelegram  Platform = "telegram"
	PlatformPinterest Platform = "pinterest"
	PlatformSnapchat  Platform = "snapchat"
	PlatformSpotify   Platform = "spotify"
)

// AllPlatforms — полный список платформ (для построения Registry и валидации).
func AllPlatforms() []Platform {
	return []Platform{
		PlatformFacebook, PlatformTwitter, PlatformInstagram, PlatformTikTok,
		PlatformYouTube, PlatformReddit, PlatformDiscord, PlatformLinkedIn,
		PlatformTelegram, PlatformPinterest, PlatformSnapchat, PlatformSpotify,
	}
}

// ParsePlatform парсит строку в Platform.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(s)
	for _, known := range AllPlatforms() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unsupported platform: %q", s)
}

// String возвращает строковое представление Platform.
func (p Platform) String() string {
	return string(p)
}
