package upcaster

import (
	"fmt"
	"strconv"
	"strings"
)

// SemanticVersion 事件版本，形如 "2"、"2.3"、"2.3.4"；多余的段被忽略
type SemanticVersion struct {
	Major uint32
	Minor uint32
	Patch uint32
}

// ParseSemanticVersion 解析版本字符串，缺省段按 0 处理
func ParseSemanticVersion(s string) (SemanticVersion, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	var nums [3]uint32
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.ParseUint(parts[i], 10, 32)
		if err != nil {
			return SemanticVersion{}, fmt.Errorf("invalid semantic version %q: %w", s, err)
		}
		nums[i] = uint32(n)
	}
	return SemanticVersion{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// MustParseSemanticVersion 解析版本（失败 panic）
func MustParseSemanticVersion(s string) SemanticVersion {
	v, err := ParseSemanticVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Supersedes 当前版本是否严格高于 other
func (v SemanticVersion) Supersedes(other SemanticVersion) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor > other.Minor
	}
	return v.Patch > other.Patch
}

func (v SemanticVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}
