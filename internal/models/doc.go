// Package models defines the core domain models for the order-sync core.
//
// # Models
//
//   - Order: the locally cached view of a placed order, including its
//     backend-assigned lifecycle status, pickup-code flags, and split flag
//   - OrderItem: a single line on an order
//   - Participant: one member of a split session with an allocated amount
//
// # Design Principles
//
//  1. **Backend is the source of truth**: order statuses and split session
//     state arrive from the backend; the client caches, never invents.
//  2. **Monotonic flags**: Order.OTPSeen and Order.IsSplit only ever move
//     from false to true. Merging a fetched order never reverts them.
//  3. **Integer money**: all amounts are int64 minor currency units so
//     split allocations can sum exactly, with no floating-point drift.
//  4. **Avoid circular references**: relationships use id values, not
//     pointers.
package models
