package config

import "github.com/ignite/adpulse/internal/domain"

// DefaultGoalFamilies maps the platform's adset optimization goals to the
// candidate result families, in priority order. The first family with any
// matching action in a week becomes the ad's primary family for that week.
func DefaultGoalFamilies() map[string][]domain.ResultFamily {
	return map[string][]domain.ResultFamily{
		"CONVERSATIONS":      {domain.FamilyMessages},
		"REPLIES":            {domain.FamilyMessages},
		"LEAD_GENERATION":    {domain.FamilyLeadgenForm, domain.FamilyWebsiteLead},
		"OFFSITE_CONVERSIONS": {domain.FamilyWebsiteLead, domain.FamilyPurchase},
		"VALUE":              {domain.FamilyPurchase},
		"PURCHASES":          {domain.FamilyPurchase},
		"LINK_CLICKS":        {domain.FamilyClick},
		"LANDING_PAGE_VIEWS": {domain.FamilyClick},
		"THRUPLAY":           {domain.FamilyVideoView},
		"VIDEO_VIEWS":        {domain.FamilyVideoView},
		"APP_INSTALLS":       {domain.FamilyAppInstall},
	}
}

// DefaultActionFamilies maps raw conversion-action types to result families.
func DefaultActionFamilies() map[string]domain.ResultFamily {
	return map[string]domain.ResultFamily{
		"onsite_conversion.messaging_conversation_started_7d": domain.FamilyMessages,
		"onsite_conversion.messaging_first_reply":             domain.FamilyMessages,
		"onsite_conversion.total_messaging_connection":        domain.FamilyMessages,
		"onsite_conversion.lead_grouped":                      domain.FamilyLeadgenForm,
		"leadgen_grouped":                                     domain.FamilyLeadgenForm,
		"lead":                                                domain.FamilyWebsiteLead,
		"offsite_conversion.fb_pixel_lead":                    domain.FamilyWebsiteLead,
		"offsite_conversion.fb_pixel_complete_registration":   domain.FamilyWebsiteLead,
		"purchase":                                            domain.FamilyPurchase,
		"offsite_conversion.fb_pixel_purchase":                domain.FamilyPurchase,
		"omni_purchase":                                       domain.FamilyPurchase,
		"link_click":                                          domain.FamilyClick,
		"landing_page_view":                                   domain.FamilyClick,
		"video_thruplay_watched":                              domain.FamilyVideoView,
		"video_view":                                          domain.FamilyVideoView,
		"mobile_app_install":                                  domain.FamilyAppInstall,
		"app_install":                                         domain.FamilyAppInstall,
	}
}

// DefaultMinResults gates weekly anomaly eligibility per result family.
func DefaultMinResults() map[domain.ResultFamily]float64 {
	return map[domain.ResultFamily]float64{
		domain.FamilyMessages:    5,
		domain.FamilyLeadgenForm: 5,
		domain.FamilyWebsiteLead: 5,
		domain.FamilyPurchase:    3,
		domain.FamilyClick:       50,
		domain.FamilyVideoView:   50,
		domain.FamilyAppInstall:  3,
	}
}

// DefaultTriggerThresholds holds each tracked metric's significance threshold
// in percent. The sign encodes the bad direction: positive means an increase
// is bad, negative means a decrease is bad.
func DefaultTriggerThresholds() map[string]float64 {
	return map[string]float64{
		"frequency":          15,
		"cpm":                15,
		"cpr":                20,
		"spend":              30,
		"ctr":                -15,
		"link_ctr":           -15,
		"results":            -20,
		"quality_ranking":    -20,
		"engagement_ranking": -20,
		"conversion_ranking": -20,
	}
}
