package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/brojonat/kora/service/config"
	"github.com/brojonat/kora/service/instruction"
	"github.com/brojonat/kora/service/kerr"
	"github.com/brojonat/kora/service/oracle"
	"github.com/brojonat/kora/service/signer"
	"github.com/brojonat/kora/service/soltx"
	"github.com/brojonat/kora/service/token"
)

// knownMethods is every method the server can serve; enabled_methods can
// only narrow this set.
var knownMethods = []string{
	"liveness",
	"getConfig",
	"getSupportedTokens",
	"getPayerSigner",
	"getBlockhash",
	"estimateTransactionFee",
	"signTransaction",
	"signAndSendTransaction",
	"transferTransaction",
}

type rpcMethod func(ctx context.Context, params json.RawMessage) (any, error)

func (s *Server) methods() map[string]rpcMethod {
	return map[string]rpcMethod{
		"liveness":               s.handleLiveness,
		"getConfig":              s.handleGetConfig,
		"getSupportedTokens":     s.handleGetSupportedTokens,
		"getPayerSigner":         s.handleGetPayerSigner,
		"getBlockhash":           s.handleGetBlockhash,
		"estimateTransactionFee": s.handleEstimateTransactionFee,
		"signTransaction":        s.handleSignTransaction,
		"signAndSendTransaction": s.handleSignAndSendTransaction,
		"transferTransaction":    s.handleTransferTransaction,
	}
}

// handleRPC is the single JSON-RPC endpoint: it reads the body, applies the
// method whitelist and auth layers, then dispatches.
func (s *Server) handleRPC() http.Handler {
	methods := s.methods()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.Kora.MaxRequestBodySize))
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}

		var req rpcRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeRPCError(w, s.logger, nil, codeParseError, "parse error")
			return
		}
		if req.Method == "" {
			writeRPCError(w, s.logger, req.ID, codeInvalidRequest, "missing method")
			return
		}

		if !s.cfg.MethodEnabled(req.Method) {
			http.Error(w, "method not enabled", http.StatusMethodNotAllowed)
			return
		}

		if !authorize(s.cfg.Kora.Auth, req.Method, r.Header, body, time.Now()) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		handler, ok := methods[req.Method]
		if !ok {
			writeRPCError(w, s.logger, req.ID, codeMethodNotFound, "method not found")
			return
		}

		start := time.Now()
		result, err := handler(r.Context(), req.Params)
		s.recordRequest(req.Method, start, err)

		if err != nil {
			code, msg := kerr.ToJSONRPC(err)
			s.logger.WarnContext(r.Context(), "request failed",
				"method", req.Method,
				"error", err,
			)
			writeRPCError(w, s.logger, req.ID, code, msg)
			return
		}
		writeResult(w, s.logger, req.ID, result)
	})
}

func (s *Server) recordRequest(method string, start time.Time, err error) {
	if s.deps.Metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.deps.Metrics.RecordRequest(method, status, time.Since(start).Seconds())
}

func (s *Server) handleLiveness(context.Context, json.RawMessage) (any, error) {
	return "ok", nil
}

type getConfigResponse struct {
	FeePayers        []string                `json:"fee_payers"`
	ValidationConfig config.ValidationConfig `json:"validation_config"`
	EnabledMethods   []string                `json:"enabled_methods"`
}

func (s *Server) handleGetConfig(context.Context, json.RawMessage) (any, error) {
	if s.deps.Pool == nil {
		return nil, kerr.New(kerr.InternalServerError, "signer pool is not initialized")
	}
	records := s.deps.Pool.Records()
	feePayers := make([]string, len(records))
	for i, rec := range records {
		feePayers[i] = rec.Signer.Pubkey().String()
	}
	return getConfigResponse{
		FeePayers:        feePayers,
		ValidationConfig: s.cfg.Validation,
		EnabledMethods:   s.cfg.EnabledMethodNames(knownMethods),
	}, nil
}

func (s *Server) handleGetSupportedTokens(context.Context, json.RawMessage) (any, error) {
	tokens := s.cfg.Validation.AllowedTokens
	if tokens == nil {
		tokens = []string{}
	}
	return map[string][]string{"tokens": tokens}, nil
}

func (s *Server) handleGetPayerSigner(context.Context, json.RawMessage) (any, error) {
	rec := s.deps.Pool.Next()
	pubkey := rec.Signer.Pubkey()
	return map[string]string{
		"signer_address":  pubkey.String(),
		"payment_address": s.deps.Payments.Sink(pubkey).String(),
	}, nil
}

func (s *Server) handleGetBlockhash(ctx context.Context, _ json.RawMessage) (any, error) {
	bh, err := s.deps.Chain.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"blockhash": bh.Blockhash.String()}, nil
}

type estimateFeeParams struct {
	Transaction string `json:"transaction"`
	FeeToken    string `json:"fee_token"`
	SignerKey   string `json:"signer_key"`
	SigVerify   bool   `json:"sig_verify"`
}

type estimateFeeResponse struct {
	FeeInLamports  uint64  `json:"fee_in_lamports"`
	FeeInToken     *uint64 `json:"fee_in_token,omitempty"`
	SignerPubkey   string  `json:"signer_pubkey"`
	PaymentAddress string  `json:"payment_address"`
}

func (s *Server) handleEstimateTransactionFee(ctx context.Context, params json.RawMessage) (any, error) {
	var p estimateFeeParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}

	rec, err := s.selectSigner(p.SignerKey)
	if err != nil {
		return nil, err
	}
	pubkey := rec.Signer.Pubkey()

	r, err := soltx.Decode(ctx, p.Transaction, s.deps.Accounts)
	if err != nil {
		return nil, err
	}
	if p.SigVerify {
		if err := r.VerifySignatures(); err != nil {
			return nil, err
		}
	}
	classified, err := instruction.Classify(r)
	if err != nil {
		return nil, err
	}

	sink := s.deps.Payments.Sink(pubkey)
	breakdown, err := s.deps.Estimator.Estimate(ctx, r, classified, pubkey, &sink)
	if err != nil {
		return nil, err
	}

	resp := estimateFeeResponse{
		FeeInLamports:  breakdown.Total,
		SignerPubkey:   pubkey.String(),
		PaymentAddress: sink.String(),
	}

	if p.FeeToken != "" {
		mint, err := solanago.PublicKeyFromBase58(p.FeeToken)
		if err != nil {
			return nil, kerr.Wrap(kerr.ValidationError, "invalid fee token", err)
		}
		if !s.rules.PaidTokenAllowed(mint) {
			return nil, kerr.Newf(kerr.UnsupportedFeeToken, "token %s is not accepted for fee payment", mint)
		}
		inToken, err := s.deps.Estimator.LamportsToToken(ctx, mint, breakdown.Total)
		if err != nil {
			return nil, err
		}
		resp.FeeInToken = &inToken
	}

	return resp, nil
}

type signParams struct {
	Transaction string `json:"transaction"`
	SignerKey   string `json:"signer_key"`
}

type signResponse struct {
	SignedTransaction string `json:"signed_transaction"`
	Signature         string `json:"signature,omitempty"`
	SignerPubkey      string `json:"signer_pubkey"`
}

func (s *Server) handleSignTransaction(ctx context.Context, params json.RawMessage) (any, error) {
	var p signParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	_, resp, err := s.sign(ctx, p)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Server) handleSignAndSendTransaction(ctx context.Context, params json.RawMessage) (any, error) {
	var p signParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	r, resp, err := s.sign(ctx, p)
	if err != nil {
		return nil, err
	}
	sig, err := s.deps.Chain.SendTransaction(ctx, r.Tx)
	if err != nil {
		return nil, err
	}
	resp.Signature = sig.String()
	return resp, nil
}

// sign runs the full pipeline: select signer, decode, validate, verify
// payment, count usage, then sign.
func (s *Server) sign(ctx context.Context, p signParams) (*soltx.Resolved, *signResponse, error) {
	rec, err := s.selectSigner(p.SignerKey)
	if err != nil {
		return nil, nil, err
	}
	pubkey := rec.Signer.Pubkey()

	r, err := soltx.Decode(ctx, p.Transaction, s.deps.Accounts)
	if err != nil {
		return nil, nil, err
	}

	classified, err := s.deps.Validator.Validate(ctx, r, pubkey)
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.deps.Payments.Verify(ctx, r, classified, pubkey); err != nil {
		return nil, nil, err
	}

	if err := s.deps.Usage.Check(ctx, r); err != nil {
		return nil, nil, err
	}

	msg, err := r.MessageBytes()
	if err != nil {
		return nil, nil, err
	}
	sig, err := rec.Signer.SignMessage(ctx, msg)
	if err != nil {
		return nil, nil, err
	}
	if err := r.ApplySignature(pubkey, sig); err != nil {
		return nil, nil, err
	}

	encoded, err := r.EncodeBase64()
	if err != nil {
		return nil, nil, err
	}

	s.logger.InfoContext(ctx, "transaction signed",
		"signer", pubkey.String(),
		"fee_payer", r.FeePayer().String(),
	)
	return r, &signResponse{
		SignedTransaction: encoded,
		SignerPubkey:      pubkey.String(),
	}, nil
}

type transferParams struct {
	Amount      uint64 `json:"amount"`
	Token       string `json:"token"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	SignerKey   string `json:"signer_key"`
}

type transferResponse struct {
	Transaction  string `json:"transaction"`
	Message      string `json:"message"`
	Blockhash    string `json:"blockhash"`
	SignerPubkey string `json:"signer_pubkey"`
}

// handleTransferTransaction composes an unsigned transfer transaction with
// a pool signer as fee payer. The result still goes through signTransaction
// so every policy check applies before the relayer commits to it.
func (s *Server) handleTransferTransaction(ctx context.Context, params json.RawMessage) (any, error) {
	var p transferParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Amount == 0 {
		return nil, kerr.New(kerr.ValidationError, "amount must be greater than zero")
	}

	rec, err := s.selectSigner(p.SignerKey)
	if err != nil {
		return nil, err
	}
	payer := rec.Signer.Pubkey()

	source, err := solanago.PublicKeyFromBase58(p.Source)
	if err != nil {
		return nil, kerr.Wrap(kerr.ValidationError, "invalid source", err)
	}
	dest, err := solanago.PublicKeyFromBase58(p.Destination)
	if err != nil {
		return nil, kerr.Wrap(kerr.ValidationError, "invalid destination", err)
	}
	mint, err := solanago.PublicKeyFromBase58(p.Token)
	if err != nil {
		return nil, kerr.Wrap(kerr.ValidationError, "invalid token", err)
	}
	for _, key := range []solanago.PublicKey{source, dest} {
		if s.rules.DisallowedAccounts[key] {
			return nil, kerr.Newf(kerr.ValidationError, "account %s is disallowed", key)
		}
	}

	var instructions []solanago.Instruction
	if mint.Equals(oracle.NativeMint) {
		instructions = append(instructions,
			system.NewTransferInstruction(p.Amount, source, dest).Build())
	} else {
		instructions, err = s.tokenTransferInstructions(ctx, payer, source, dest, mint, p.Amount)
		if err != nil {
			return nil, err
		}
	}

	bh, err := s.deps.Chain.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := solanago.NewTransaction(instructions, bh.Blockhash, solanago.TransactionPayer(payer))
	if err != nil {
		return nil, kerr.Wrap(kerr.SerializationError, "failed to build transaction", err)
	}

	r, err := soltx.NewKoraBuilt(tx)
	if err != nil {
		return nil, err
	}
	if _, err := s.deps.Validator.Validate(ctx, r, payer); err != nil {
		return nil, err
	}

	encoded, err := r.EncodeBase64()
	if err != nil {
		return nil, err
	}
	msg, err := r.MessageBytes()
	if err != nil {
		return nil, err
	}

	return transferResponse{
		Transaction:  encoded,
		Message:      base64.StdEncoding.EncodeToString(msg),
		Blockhash:    bh.Blockhash.String(),
		SignerPubkey: payer.String(),
	}, nil
}

// tokenTransferInstructions builds a checked transfer between the wallets'
// associated token accounts, creating the destination ATA first when it
// does not exist yet.
func (s *Server) tokenTransferInstructions(ctx context.Context, payer, source, dest, mint solanago.PublicKey, amount uint64) ([]solanago.Instruction, error) {
	acct, err := s.deps.Accounts.GetAccount(ctx, mint, false)
	if err != nil {
		return nil, kerr.Wrap(kerr.ValidationError, "failed to fetch mint "+mint.String(), err)
	}
	prog, err := token.ForProgram(acct.Owner)
	if err != nil {
		return nil, err
	}
	info, err := prog.UnpackMint(mint, acct.Data)
	if err != nil {
		return nil, err
	}

	srcATA, err := prog.AssociatedTokenAddress(source, mint)
	if err != nil {
		return nil, err
	}
	destATA, err := prog.AssociatedTokenAddress(dest, mint)
	if err != nil {
		return nil, err
	}

	var instructions []solanago.Instruction
	if _, err := s.deps.Accounts.GetAccount(ctx, destATA, false); err != nil {
		if !kerr.IsKind(err, kerr.AccountNotFound) {
			return nil, err
		}
		create, err := prog.CreateAssociatedTokenAccountInstruction(payer, dest, mint)
		if err != nil {
			return nil, err
		}
		instructions = append(instructions, create)
	}

	instructions = append(instructions,
		prog.CreateTransferCheckedInstruction(srcATA, mint, destATA, source, amount, info.Decimals))
	return instructions, nil
}

// selectSigner pins to signerKey when provided, otherwise lets the pool
// strategy choose.
func (s *Server) selectSigner(signerKey string) (signer.Record, error) {
	if signerKey != "" {
		return s.deps.Pool.GetByPubkey(signerKey)
	}
	return s.deps.Pool.Next(), nil
}

func unmarshalParams(params json.RawMessage, into any) error {
	if len(params) == 0 {
		return kerr.New(kerr.InvalidRequest, "missing params")
	}
	if err := json.Unmarshal(params, into); err != nil {
		return kerr.Wrap(kerr.InvalidRequest, "malformed params", err)
	}
	return nil
}
