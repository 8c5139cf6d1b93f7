package handler

import (
	"freightdesk/internal/warehouse/models"
	id "freightdesk/pkg/domain"
)

// ContainerListResponse is the body of GET /containers.
type ContainerListResponse struct {
	Containers []*models.ContainerView `json:"containers"`
}

// DeleteContainerResponse lists the invoices returned to the unassigned pool.
type DeleteContainerResponse struct {
	ContainerID id.ContainerID `json:"container_id"`
	Released    []id.InvoiceID `json:"released"`
}
