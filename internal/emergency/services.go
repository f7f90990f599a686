package emergency

import (
	"strings"

	"Travault/pkg/errors"
)

// ErrUnknownCountry 国家代码没有对应的急救号码
var ErrUnknownCountry = errors.NotFound("Emergency services not found for this country")

// ServiceNumbers 某国各类紧急服务号码
type ServiceNumbers map[string]string

var serviceNumbers = map[string]ServiceNumbers{
	"US": {"police": "911", "fire": "911", "medical": "911", "general": "911"},
	"UK": {"police": "999", "fire": "999", "medical": "999", "general": "999", "non_emergency_police": "101", "non_emergency_medical": "111"},
	"CA": {"police": "911", "fire": "911", "medical": "911", "general": "911"},
	"AU": {"police": "000", "fire": "000", "medical": "000", "general": "000"},
	"DE": {"police": "110", "fire": "112", "medical": "112", "general": "112"},
	"FR": {"police": "17", "fire": "18", "medical": "15", "general": "112"},
	"JP": {"police": "110", "fire": "119", "medical": "119"},
	"IN": {"police": "100", "fire": "101", "medical": "108", "general": "112"},
	"BR": {"police": "190", "fire": "193", "medical": "192", "general": "911"},
	"MX": {"police": "911", "fire": "911", "medical": "911", "general": "911"},
}

// Instructions 拨打急救电话时的提示
var Instructions = map[string]string{
	"general":     "Stay calm and speak clearly when calling emergency services",
	"information": "Be ready to provide your location, nature of emergency, and contact information",
	"language":    "If language is a barrier, ask for an interpreter",
}

// Services 按国家代码（不区分大小写）查询号码，返回规范化后的国家代码
func Services(country string) (string, ServiceNumbers, error) {
	code := strings.ToUpper(strings.TrimSpace(country))
	numbers, ok := serviceNumbers[code]
	if !ok {
		return code, nil, ErrUnknownCountry
	}
	out := make(ServiceNumbers, len(numbers))
	for k, v := range numbers {
		out[k] = v
	}
	return code, out, nil
}
