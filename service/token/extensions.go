package token

import "fmt"

// MintExtension and AccountExtension are snake_case extension names as they
// appear in validation config block lists.
type (
	MintExtension    string
	AccountExtension string
)

// Token-2022 extension type discriminators.
const (
	extTransferFeeConfig             = 1
	extTransferFeeAmount             = 2
	extMintCloseAuthority            = 3
	extConfidentialTransferMint      = 4
	extConfidentialTransferAccount   = 5
	extDefaultAccountState           = 6
	extImmutableOwner                = 7
	extMemoTransfer                  = 8
	extNonTransferable               = 9
	extInterestBearingConfig         = 10
	extCpiGuard                      = 11
	extPermanentDelegate             = 12
	extNonTransferableAccount        = 13
	extTransferHook                  = 14
	extTransferHookAccount           = 15
	extConfidentialTransferFeeConfig = 16
	extConfidentialTransferFeeAmount = 17
	extMetadataPointer               = 18
	extTokenMetadata                 = 19
	extGroupPointer                  = 20
	extTokenGroup                    = 21
	extGroupMemberPointer            = 22
	extTokenGroupMember              = 23
	extConfidentialMintBurn          = 24
	extScaledUIAmount                = 25
	extPausable                      = 26
	extPausableAccount               = 27
)

var mintExtensionNames = map[uint16]MintExtension{
	extTransferFeeConfig:             "transfer_fee_config",
	extMintCloseAuthority:            "mint_close_authority",
	extConfidentialTransferMint:      "confidential_transfer_mint",
	extDefaultAccountState:           "default_account_state",
	extNonTransferable:               "non_transferable",
	extInterestBearingConfig:         "interest_bearing_config",
	extPermanentDelegate:             "permanent_delegate",
	extTransferHook:                  "transfer_hook",
	extConfidentialTransferFeeConfig: "confidential_transfer_fee_config",
	extMetadataPointer:               "metadata_pointer",
	extTokenMetadata:                 "token_metadata",
	extGroupPointer:                  "group_pointer",
	extTokenGroup:                    "token_group",
	extGroupMemberPointer:            "group_member_pointer",
	extConfidentialMintBurn:          "confidential_mint_burn",
	extScaledUIAmount:                "scaled_ui_amount",
	extPausable:                      "pausable",
}

var accountExtensionNames = map[uint16]AccountExtension{
	extTransferFeeAmount:             "transfer_fee_amount",
	extConfidentialTransferAccount:   "confidential_transfer_account",
	extImmutableOwner:                "immutable_owner",
	extMemoTransfer:                  "memo_transfer",
	extCpiGuard:                      "cpi_guard",
	extNonTransferableAccount:        "non_transferable_account",
	extTransferHookAccount:           "transfer_hook_account",
	extConfidentialTransferFeeAmount: "confidential_transfer_fee_amount",
	extTokenGroupMember:              "token_group_member",
	extPausableAccount:               "pausable_account",
}

func mintExtensionName(t uint16) MintExtension {
	if name, ok := mintExtensionNames[t]; ok {
		return name
	}
	return MintExtension(fmt.Sprintf("unknown_extension_%d", t))
}

func accountExtensionName(t uint16) AccountExtension {
	if name, ok := accountExtensionNames[t]; ok {
		return name
	}
	return AccountExtension(fmt.Sprintf("unknown_extension_%d", t))
}
