package handler

import (
	"strconv"

	"KayaAttend/internal/model"
	"KayaAttend/internal/model/dto"
	"KayaAttend/internal/service"
	"KayaAttend/pkg/errors"
)

func toSiteData(site model.Site) dto.SiteData {
	return dto.SiteData{
		ID:       site.ID,
		Name:     site.Name,
		Slug:     service.Slugify(site.Name),
		Path:     service.SitePath(site),
		ColorTag: site.ColorTag,
	}
}

func toFormData(snap model.FormSnapshot) dto.FormData {
	data := dto.FormData{
		FormID:      strconv.FormatInt(snap.ID, 10),
		Site:        toSiteData(snap.Site),
		State:       snap.State,
		Draft:       snap.Draft,
		Touched:     snap.Touched,
		FieldErrors: snap.FieldErrors,
		Clock:       snap.Clock,
	}

	if snap.Notice.Kind != model.NoticeNone {
		notice := snap.Notice
		data.Notice = &notice
	}

	data.Confirm = snap.Pending

	return data
}

// parseFormID 路径参数 form_id 必须是正整数
func parseFormID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.InvalidRequest
	}
	return id, nil
}
