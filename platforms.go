package main

import "fmt"

// Platform describes one publishing target: where its login flow lives,
// which cookies indicate a live session, and which page markers feed the
// classifier.
type Platform struct {
	Name       string
	BaseURL    string
	LoginURL   string
	CookieHost string // host_key substring in the Chrome Cookies DB

	// SessionCookies are the cookie names whose presence indicates an
	// authenticated session. Presence only; values are never read.
	SessionCookies []string

	// AuthMarker is page content proving an authenticated session. It
	// short-circuits every failure rule in the classifier.
	AuthMarker string

	CaptchaMarkers    []string
	ChallengeMarkers  []string
	CheckpointMarkers []string
	LoginMarkers      []string
}

var platforms = map[string]*Platform{
	"tiktok": {
		Name:           "tiktok",
		BaseURL:        "https://www.tiktok.com/",
		LoginURL:       "https://www.tiktok.com/login",
		CookieHost:     "tiktok.com",
		SessionCookies: []string{"sessionid", "sid_tt"},
		AuthMarker:     `"uid":"`,
		CaptchaMarkers: []string{"captcha-verify", "captcha_verify", "secsdk-captcha"},
		ChallengeMarkers: []string{
			"Verify to continue",
			"/verify/",
		},
		CheckpointMarkers: []string{"security-check"},
		LoginMarkers:      []string{"/login", "Log in to TikTok"},
	},
	"instagram": {
		Name:           "instagram",
		BaseURL:        "https://www.instagram.com/",
		LoginURL:       "https://www.instagram.com/accounts/login/",
		CookieHost:     "instagram.com",
		SessionCookies: []string{"sessionid", "ds_user_id"},
		AuthMarker:     `"ds_user_id"`,
		CaptchaMarkers: []string{"recaptcha", "arkose"},
		ChallengeMarkers: []string{
			"/challenge/",
			"Suspicious Login Attempt",
		},
		CheckpointMarkers: []string{"/checkpoint/", "checkpoint_required"},
		LoginMarkers:      []string{"/accounts/login", "Log in to Instagram"},
	},
	"youtube": {
		Name:           "youtube",
		BaseURL:        "https://studio.youtube.com/",
		LoginURL:       "https://accounts.google.com/ServiceLogin?service=youtube",
		CookieHost:     "youtube.com",
		SessionCookies: []string{"SID", "SAPISID"},
		AuthMarker:     `"channelId":"`,
		CaptchaMarkers: []string{"recaptcha"},
		ChallengeMarkers: []string{
			"/signin/challenge",
			"Verify it's you",
		},
		CheckpointMarkers: []string{"accounts.google.com/speedbump"},
		LoginMarkers:      []string{"accounts.google.com/ServiceLogin", "Sign in"},
	},
}

// LookupPlatform returns the descriptor for a platform name.
func LookupPlatform(name string) (*Platform, error) {
	p, ok := platforms[name]
	if !ok {
		return nil, fmt.Errorf("unknown platform %q (known: tiktok, instagram, youtube)", name)
	}
	return p, nil
}
