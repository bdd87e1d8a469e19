package models

// Endpoints are the remote path templates. Placeholders such as {entity_id}
// are filled in per request.
type Endpoints struct {
	Wallets             string `yaml:"wallets"`
	Transactions        string `yaml:"transactions"`
	Interactions        string `yaml:"interactions"`
	DeletedInteractions string `yaml:"deleted_interactions"`
	Messages            string `yaml:"messages"`
	Timeline            string `yaml:"timeline"`
	Kyc                 string `yaml:"kyc"`
	Pools               string `yaml:"pools"`
	PoolEnrollments     string `yaml:"pool_enrollments"`
	SendMoney           string `yaml:"send_money"`
	SetPrimaryWallet    string `yaml:"set_primary_wallet"`
	Health              string `yaml:"health"`
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		Wallets:             "/entities/{entity_id}/wallets",
		Transactions:        "/transactions",
		Interactions:        "/interactions",
		DeletedInteractions: "/interactions/deleted",
		Messages:            "/interactions/{interaction_id}/messages",
		Timeline:            "/interactions/{interaction_id}/timeline",
		Kyc:                 "/entities/{entity_id}/kyc",
		Pools:               "/pools",
		PoolEnrollments:     "/entities/{entity_id}/pool-enrollments",
		SendMoney:           "/transactions",
		SetPrimaryWallet:    "/wallets/{wallet_id}/primary",
		Health:              "/health",
	}
}
