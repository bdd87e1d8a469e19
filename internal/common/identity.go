package common

import (
	"fmt"
	"os"

	"wallet-sync-go/internal/models"

	"go.uber.org/zap"
)

// ResolveIdentity picks the signed-in profile for command-line utilities.
// Flags win over WALLET_PROFILE_ID and WALLET_ENTITY_ID.
func ResolveIdentity(profileId, entityId string) (models.Identity, error) {
	if profileId == "" {
		profileId = os.Getenv("WALLET_PROFILE_ID")
	}
	if entityId == "" {
		entityId = os.Getenv("WALLET_ENTITY_ID")
	}
	if profileId == "" {
		return models.Identity{}, fmt.Errorf("profile id is required: pass --profile or set WALLET_PROFILE_ID")
	}

	zap.L().Info("Resolved identity",
		zap.String("profile_id", profileId),
		zap.String("entity_id", entityId))
	return models.Identity{ProfileId: profileId, EntityId: entityId}, nil
}
