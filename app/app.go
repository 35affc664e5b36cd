package app

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cosmossdk.io/core/appmodule"
	"cosmossdk.io/log"
	storetypes "cosmossdk.io/store/types"
	abci "github.com/cometbft/cometbft/abci/types"
	cmtcrypto "github.com/cometbft/cometbft/proto/tendermint/crypto"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/cosmos/cosmos-sdk/baseapp"
	"github.com/cosmos/cosmos-sdk/client"
	"github.com/cosmos/cosmos-sdk/client/grpc/cmtservice"
	nodeservice "github.com/cosmos/cosmos-sdk/client/grpc/node"
	"github.com/cosmos/cosmos-sdk/codec"
	"github.com/cosmos/cosmos-sdk/codec/address"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	"github.com/cosmos/cosmos-sdk/runtime"
	"github.com/cosmos/cosmos-sdk/server/api"
	"github.com/cosmos/cosmos-sdk/server/config"
	servertypes "github.com/cosmos/cosmos-sdk/server/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/module"
	"github.com/cosmos/cosmos-sdk/x/auth"
	authkeeper "github.com/cosmos/cosmos-sdk/x/auth/keeper"
	authtx "github.com/cosmos/cosmos-sdk/x/auth/tx"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	"github.com/cosmos/cosmos-sdk/x/bank"
	bankkeeper "github.com/cosmos/cosmos-sdk/x/bank/keeper"
	banktypes "github.com/cosmos/cosmos-sdk/x/bank/types"
	"github.com/cosmos/cosmos-sdk/x/consensus"
	consensusparamkeeper "github.com/cosmos/cosmos-sdk/x/consensus/keeper"
	consensusparamtypes "github.com/cosmos/cosmos-sdk/x/consensus/types"
	"github.com/cosmos/cosmos-sdk/x/genutil"
	genutiltypes "github.com/cosmos/cosmos-sdk/x/genutil/types"
	"github.com/cosmos/cosmos-sdk/x/staking"
	gogoprotograpc "github.com/cosmos/gogoproto/grpc"

	"github.com/openalpha/sharepool/x/pool"
	poolkeeper "github.com/openalpha/sharepool/x/pool/keeper"
	pooltypes "github.com/openalpha/sharepool/x/pool/types"
)

const (
	Name = "sharepool"

	// SettlementDenomOption is the app.toml key overriding the settlement denom
	SettlementDenomOption = "pool.settlement-denom"

	// invariantCheckInterval is how often EndBlocker re-verifies the ledger
	invariantCheckInterval = 100
)

var (
	// DefaultNodeHome default home directories for the application daemon
	DefaultNodeHome string

	// ModuleBasics defines the module BasicManager used for codec registration
	ModuleBasics = module.NewBasicManager(
		auth.AppModuleBasic{},
		bank.AppModuleBasic{},
		staking.AppModuleBasic{},
		genutil.NewAppModuleBasic(genutiltypes.DefaultMessageValidator),
		consensus.AppModuleBasic{},
		pool.AppModuleBasic{},
	)

	// maccPerms are the module accounts. The pool account holds custody and
	// needs no mint or burn rights.
	maccPerms = map[string][]string{
		authtypes.FeeCollectorName: nil,
		pooltypes.ModuleName:       nil,
	}
)

func init() {
	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	DefaultNodeHome = filepath.Join(userHomeDir, ".sharepool")
}

// App extends an ABCI application
type App struct {
	*baseapp.BaseApp

	legacyAmino       *codec.LegacyAmino
	appCodec          codec.Codec
	interfaceRegistry codectypes.InterfaceRegistry
	txConfig          client.TxConfig

	// Keys
	keys    map[string]*storetypes.KVStoreKey
	tkeys   map[string]*storetypes.TransientStoreKey
	memKeys map[string]*storetypes.MemoryStoreKey

	// SDK Keepers
	ConsensusParamsKeeper consensusparamkeeper.Keeper
	AccountKeeper         authkeeper.AccountKeeper
	BankKeeper            bankkeeper.BaseKeeper

	// Custom module keepers
	PoolKeeper *poolkeeper.Keeper

	poolModule pool.AppModule

	// Module Manager
	BasicModuleManager module.BasicManager
}

// NewApp returns a new App instance
func NewApp(
	logger log.Logger,
	db dbm.DB,
	traceStore io.Writer,
	loadLatest bool,
	appOpts servertypes.AppOptions,
	baseAppOptions ...func(*baseapp.BaseApp),
) *App {
	encodingConfig := MakeEncodingConfig()
	appCodec := encodingConfig.Codec
	legacyAmino := encodingConfig.Amino
	interfaceRegistry := encodingConfig.InterfaceRegistry

	bApp := baseapp.NewBaseApp(Name, logger, db, encodingConfig.TxConfig.TxDecoder(), baseAppOptions...)
	bApp.SetCommitMultiStoreTracer(traceStore)
	bApp.SetInterfaceRegistry(interfaceRegistry)

	keys := storetypes.NewKVStoreKeys(
		authtypes.StoreKey,
		banktypes.StoreKey,
		pooltypes.StoreKey,
		consensusparamtypes.StoreKey,
	)
	tkeys := storetypes.NewTransientStoreKeys()
	memKeys := storetypes.NewMemoryStoreKeys()

	app := &App{
		BaseApp:            bApp,
		legacyAmino:        legacyAmino,
		appCodec:           appCodec,
		interfaceRegistry:  interfaceRegistry,
		txConfig:           encodingConfig.TxConfig,
		keys:               keys,
		tkeys:              tkeys,
		memKeys:            memKeys,
		BasicModuleManager: ModuleBasics,
	}

	govAuthority := authtypes.NewModuleAddress("gov").String()

	app.ConsensusParamsKeeper = consensusparamkeeper.NewKeeper(
		appCodec,
		runtime.NewKVStoreService(keys[consensusparamtypes.StoreKey]),
		govAuthority,
		runtime.EventService{},
	)
	bApp.SetParamStore(app.ConsensusParamsKeeper.ParamsStore)

	addrCodec := address.NewBech32Codec(sdk.GetConfig().GetBech32AccountAddrPrefix())

	app.AccountKeeper = authkeeper.NewAccountKeeper(
		appCodec,
		runtime.NewKVStoreService(keys[authtypes.StoreKey]),
		authtypes.ProtoBaseAccount,
		maccPerms,
		addrCodec,
		sdk.GetConfig().GetBech32AccountAddrPrefix(),
		govAuthority,
	)

	app.BankKeeper = bankkeeper.NewBaseKeeper(
		appCodec,
		runtime.NewKVStoreService(keys[banktypes.StoreKey]),
		app.AccountKeeper,
		BlockedModuleAccountAddrs(),
		govAuthority,
		logger,
	)

	app.PoolKeeper = poolkeeper.NewKeeper(
		appCodec,
		keys[pooltypes.StoreKey],
		app.BankKeeper,
		settlementDenom(appOpts),
		govAuthority,
		logger,
	)
	app.poolModule = pool.NewAppModule(app.PoolKeeper)

	// Register QueryServers for SDK modules
	authtypes.RegisterQueryServer(bApp.GRPCQueryRouter(), authkeeper.NewQueryServer(app.AccountKeeper))
	banktypes.RegisterQueryServer(bApp.GRPCQueryRouter(), bankkeeper.NewQuerier(&app.BankKeeper))

	app.MountKVStores(keys)
	app.MountTransientStores(tkeys)
	app.MountMemoryStores(memKeys)

	app.SetInitChainer(app.InitChainer)
	app.SetBeginBlocker(app.BeginBlocker)
	app.SetEndBlocker(app.EndBlocker)

	if loadLatest {
		if err := app.LoadLatestVersion(); err != nil {
			panic(err)
		}
	}

	return app
}

func settlementDenom(appOpts servertypes.AppOptions) string {
	if appOpts == nil {
		return pooltypes.DefaultSettlementDenom
	}
	if denom, ok := appOpts.Get(SettlementDenomOption).(string); ok && denom != "" {
		return denom
	}
	return pooltypes.DefaultSettlementDenom
}

// Name returns the name of the App
func (app *App) Name() string { return app.BaseApp.Name() }

// BeginBlocker executes begin block logic
func (app *App) BeginBlocker(ctx sdk.Context) (sdk.BeginBlock, error) {
	return sdk.BeginBlock{}, nil
}

// EndBlocker periodically re-runs the ledger invariants. A broken invariant
// halts the chain.
func (app *App) EndBlocker(ctx sdk.Context) (sdk.EndBlock, error) {
	if ctx.BlockHeight()%invariantCheckInterval != 0 {
		return sdk.EndBlock{}, nil
	}
	start := time.Now()
	msg, broken := poolkeeper.AllInvariants(app.PoolKeeper)(ctx)
	if broken {
		app.Logger().Error("pool invariant broken", "block", ctx.BlockHeight(), "details", msg)
		return sdk.EndBlock{}, fmt.Errorf("%w: %s", pooltypes.ErrInvariantBroken, msg)
	}
	app.Logger().Debug("pool invariants checked",
		"block", ctx.BlockHeight(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return sdk.EndBlock{}, nil
}

// GenutilGenesisState represents the genutil module's genesis state
type GenutilGenesisState struct {
	GenTxs []json.RawMessage `json:"gen_txs"`
}

// GenTx represents a genesis transaction
type GenTx struct {
	Body struct {
		Messages []json.RawMessage `json:"messages"`
	} `json:"body"`
}

// MsgCreateValidator represents the create validator message
type MsgCreateValidator struct {
	Type   string `json:"@type"`
	Pubkey struct {
		Type string `json:"@type"`
		Key  string `json:"key"`
	} `json:"pubkey"`
}

// InitChainer loads bank balances and the pool ledger from genesis
func (app *App) InitChainer(ctx sdk.Context, req *abci.RequestInitChain) (*abci.ResponseInitChain, error) {
	var genesisState map[string]json.RawMessage
	if err := json.Unmarshal(req.AppStateBytes, &genesisState); err != nil {
		return nil, err
	}

	if raw, ok := genesisState[banktypes.ModuleName]; ok {
		var bankGenesis banktypes.GenesisState
		if err := app.appCodec.UnmarshalJSON(raw, &bankGenesis); err != nil {
			return nil, fmt.Errorf("bank genesis: %w", err)
		}
		app.BankKeeper.InitGenesis(ctx, &bankGenesis)
	}
	// Registers the custody account so the bank can send to it
	app.AccountKeeper.GetModuleAccount(ctx, pooltypes.ModuleName)

	app.poolModule.InitGenesis(ctx, app.appCodec, genesisState[pooltypes.ModuleName])

	if len(req.Validators) > 0 {
		return &abci.ResponseInitChain{Validators: req.Validators}, nil
	}
	return &abci.ResponseInitChain{Validators: genesisValidators(genesisState)}, nil
}

// genesisValidators extracts ed25519 validator keys from the gentxs
func genesisValidators(genesisState map[string]json.RawMessage) []abci.ValidatorUpdate {
	raw, ok := genesisState[genutiltypes.ModuleName]
	if !ok {
		return nil
	}
	var genutilState GenutilGenesisState
	if err := json.Unmarshal(raw, &genutilState); err != nil {
		return nil
	}

	var validators []abci.ValidatorUpdate
	for _, genTxRaw := range genutilState.GenTxs {
		var genTx GenTx
		if err := json.Unmarshal(genTxRaw, &genTx); err != nil {
			continue
		}
		for _, msgRaw := range genTx.Body.Messages {
			var msg MsgCreateValidator
			if err := json.Unmarshal(msgRaw, &msg); err != nil || msg.Type != "/cosmos.staking.v1beta1.MsgCreateValidator" {
				continue
			}
			pubKey, err := base64.StdEncoding.DecodeString(msg.Pubkey.Key)
			if err != nil {
				continue
			}
			validators = append(validators, abci.ValidatorUpdate{
				PubKey: cmtcrypto.PublicKey{Sum: &cmtcrypto.PublicKey_Ed25519{Ed25519: pubKey}},
				Power:  100,
			})
		}
	}
	return validators
}

// ExportAppStateAndValidators exports the bank and pool state as genesis JSON
func (app *App) ExportAppStateAndValidators() (servertypes.ExportedApp, error) {
	ctx := app.NewContextLegacy(true, cmtproto.Header{Height: app.LastBlockHeight()})

	appState := map[string]json.RawMessage{
		pooltypes.ModuleName: app.poolModule.ExportGenesis(ctx, app.appCodec),
	}
	bankState, err := app.appCodec.MarshalJSON(app.BankKeeper.ExportGenesis(ctx))
	if err != nil {
		return servertypes.ExportedApp{}, err
	}
	appState[banktypes.ModuleName] = bankState

	bz, err := json.MarshalIndent(appState, "", "  ")
	if err != nil {
		return servertypes.ExportedApp{}, err
	}
	return servertypes.ExportedApp{
		AppState:        bz,
		Height:          app.LastBlockHeight(),
		ConsensusParams: app.GetConsensusParams(ctx),
	}, nil
}

// LoadHeight loads a particular height
func (app *App) LoadHeight(height int64) error {
	return app.LoadVersion(height)
}

// LegacyAmino returns the legacy amino codec
func (app *App) LegacyAmino() *codec.LegacyAmino {
	return app.legacyAmino
}

// AppCodec returns the app codec
func (app *App) AppCodec() codec.Codec {
	return app.appCodec
}

// InterfaceRegistry returns the InterfaceRegistry
func (app *App) InterfaceRegistry() codectypes.InterfaceRegistry {
	return app.interfaceRegistry
}

// RegisterAPIRoutes registers all application module routes
func (app *App) RegisterAPIRoutes(apiSvr *api.Server, apiConfig config.APIConfig) {
	ModuleBasics.RegisterGRPCGatewayRoutes(apiSvr.ClientCtx, apiSvr.GRPCGatewayRouter)
}

// GetKey returns a store key
func (app *App) GetKey(storeKey string) *storetypes.KVStoreKey {
	return app.keys[storeKey]
}

// TxConfig returns the transaction config
func (app *App) TxConfig() client.TxConfig {
	return app.txConfig
}

// AutoCliOpts returns the autocli options for the app
func (app *App) AutoCliOpts() map[string]appmodule.AppModule {
	return map[string]appmodule.AppModule{}
}

// RegisterTxService implements the Application.RegisterTxService method
func (app *App) RegisterTxService(clientCtx client.Context) {
	authtx.RegisterTxService(app.BaseApp.GRPCQueryRouter(), clientCtx, app.BaseApp.Simulate, app.interfaceRegistry)
}

// RegisterTendermintService implements the Application.RegisterTendermintService method
func (app *App) RegisterTendermintService(clientCtx client.Context) {
	cmtservice.RegisterTendermintService(
		clientCtx,
		app.BaseApp.GRPCQueryRouter(),
		app.interfaceRegistry,
		app.Query,
	)
}

// RegisterNodeService implements the Application.RegisterNodeService method
func (app *App) RegisterNodeService(clientCtx client.Context, cfg config.Config) {
	nodeservice.RegisterNodeService(clientCtx, app.BaseApp.GRPCQueryRouter(), cfg)
}

// RegisterGRPCServer registers the app's gRPC services
func (app *App) RegisterGRPCServer(server gogoprotograpc.Server) {}

// SimulationManager returns the app's simulation manager
func (app *App) SimulationManager() *module.SimulationManager {
	return nil
}

// BlockedModuleAccountAddrs returns module account addresses that may not
// receive coins through plain bank sends. Donations reach the pool account
// through the keeper only.
func BlockedModuleAccountAddrs() map[string]bool {
	blockedAddrs := make(map[string]bool)
	for acc := range maccPerms {
		blockedAddrs[authtypes.NewModuleAddress(acc).String()] = true
	}
	return blockedAddrs
}
