// Package device implements the client-side GATT cache: a central Registry of
// discovered endpoints and, for every connected endpoint, a Peripheral that
// discovers its Services, Characteristics and Descriptors level by level.
//
// Highlights:
//   - Each level stages a discovery batch and promotes it to the visible,
//     committed cache only once the whole batch has resolved
//   - Service, Characteristic and Descriptor wrappers are specialized by UUID
//     through a Factories registry with a generic fallback
//   - Changes and errors travel upward through parent links and reach the
//     single Delegate on the delivery executor; errors gain the id of every
//     level they cross
//   - Connect attempts carry a token so a late connect event after a timeout
//     is discarded
//
// The radio itself is behind the Transport interface; see the go-ble
// sub-package for the implementation used by the CLI.
package device
