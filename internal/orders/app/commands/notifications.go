package commands

import (
	"fmt"

	"github.com/dejobratic/storefront/internal/orders/domain"
)

const notificationTypeOrder = "order"

func adminNotice(title, message string) domain.Notification {
	return domain.Notification{
		Target:  domain.TargetAdmin,
		Title:   title,
		Message: message,
		Type:    notificationTypeOrder,
	}
}

func userNotice(userID, title, message string) domain.Notification {
	return domain.Notification{
		Target:      domain.TargetUser,
		RecipientID: userID,
		Title:       title,
		Message:     message,
		Type:        notificationTypeOrder,
	}
}

func riderNotice(riderID, title, message string) domain.Notification {
	return domain.Notification{
		Target:      domain.TargetRider,
		RecipientID: riderID,
		Title:       title,
		Message:     message,
		Type:        notificationTypeOrder,
	}
}

func statusMessage(orderID string, status domain.OrderStatus) string {
	return fmt.Sprintf("Your order %s is now %s", orderID, status)
}
