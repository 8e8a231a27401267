// Package config loads the parameter bundle for one playlistnet run.
//
// Sources are layered with koanf, later layers overriding earlier ones:
//
//  1. Defaults (defaultParams)
//  2. Optional YAML file: $PLAYLISTNET_CONFIG, else playlistnet.yaml or
//     playlistnet.yml in the working directory
//  3. Environment variables with the PLAYLISTNET_ prefix, for example
//     PLAYLISTNET_BATCH_SIZE=64 or PLAYLISTNET_NN=rnn
//  4. Command-line flags the user set explicitly
//
// Derive then fills in the fields that depend on the data on disk and on
// the chosen architecture and mode, and Validate checks the result. A run
// never changes its Params after that.
package config
